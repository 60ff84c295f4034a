package httpapi

import (
	"net/http"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/jobs"
)

// handleQuerySubmit submits a Sulpher query: a cache hit answers 200
// with results inline; a miss enqueues an asynchronous job and answers
// 202 with its id.
func (s *Server) handleQuerySubmit(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeErr(w, r, apierr.New(apierr.KindValidation, "graph overlay disabled"))
		return
	}
	var body struct {
		Query    string `json:"query"`
		MaxDepth int    `json:"max_depth"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	if body.MaxDepth <= 0 {
		body.MaxDepth = s.cfg.Query.MaxDepth
	}

	result, err := s.jobs.Submit(r.Context(), body.Query, body.MaxDepth)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if result.Cached {
		writeData(w, r, http.StatusOK, map[string]any{"results": result.Result})
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]any{"query_id": result.JobID})
}

func (s *Server) handleQueryStatus(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeErr(w, r, apierr.New(apierr.KindValidation, "graph overlay disabled"))
		return
	}
	job, err := s.jobs.Status(r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := map[string]any{"status": job.Status, "submitted_at": job.SubmittedAt}
	if !job.CompletedAt.IsZero() {
		resp["finished_at"] = job.CompletedAt
	}
	writeData(w, r, http.StatusOK, resp)
}

func (s *Server) handleQueryResult(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeErr(w, r, apierr.New(apierr.KindValidation, "graph overlay disabled"))
		return
	}
	job, err := s.jobs.Status(r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	switch job.Status {
	case jobs.StatusCompleted:
		writeData(w, r, http.StatusOK, map[string]any{"results": job.Result})
	case jobs.StatusFailed:
		writeErr(w, r, job.Err)
	default:
		writeErr(w, r, apierr.New(apierr.KindConflict, "query result not ready"))
	}
}
