package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/store"
)

func entityParam(r *http.Request) (string, error) {
	entity := r.PathValue("entity")
	if !store.ValidEntityName(entity) {
		return "", apierr.Newf(apierr.KindValidation, "invalid entity name %q", entity)
	}
	return entity, nil
}

func idParam(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apierr.Newf(apierr.KindValidation, "invalid id %q", raw)
	}
	return id, nil
}

// invalidateJobs evicts every cached Sulpher result after a document
// write.
func (s *Server) invalidateJobs() {
	if s.jobs != nil {
		s.jobs.InvalidateAll()
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var body store.Document
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	doc, err := s.docs.Create(r.Context(), entity, body)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.invalidateJobs()
	writeData(w, r, http.StatusCreated, doc)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var body store.Document
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	doc, err := s.docs.Save(r.Context(), entity, id, body)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.invalidateJobs()
	writeData(w, r, http.StatusCreated, doc)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	doc, err := s.docs.Get(r.Context(), entity, id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, doc)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var body store.Document
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	doc, err := s.docs.Replace(r.Context(), entity, id, body)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.invalidateJobs()
	writeData(w, r, http.StatusOK, doc)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var partial store.Document
	if err := decodeBody(r, &partial); err != nil {
		writeErr(w, r, err)
		return
	}
	doc, err := s.docs.Patch(r.Context(), entity, id, partial)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.invalidateJobs()
	writeData(w, r, http.StatusOK, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := s.docs.Delete(r.Context(), entity, id, cascade); err != nil {
		writeErr(w, r, err)
		return
	}
	s.invalidateJobs()
	writeData(w, r, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	page := parsePage(r, s.cfg.Store.DefaultPageSize)
	sorts := parseSort(r.URL.Query().Get("sort"))
	docs, total, err := s.docs.List(r.Context(), entity, page, sorts)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"items": docs,
		"page":  page.Page,
		"per_page": page.PerPage,
		"total": total,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	entity, err := entityParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	q := r.URL.Query()
	page := parsePage(r, s.cfg.Store.DefaultPageSize)
	docs, total, err := s.docs.Search(r.Context(), entity, q.Get("field"), q.Get("query"), page)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"items": docs,
		"page":  page.Page,
		"per_page": page.PerPage,
		"total": total,
	})
}

func parsePage(r *http.Request, defaultPerPage int) store.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return store.Page{Page: page, PerPage: perPage}.Clamp(defaultPerPage)
}

// parseSort parses `field:asc,other:desc` into SortSpecs, ignoring
// malformed entries (an empty sort list just means "no ordering applied").
func parseSort(raw string) []store.SortSpec {
	if raw == "" {
		return nil
	}
	var out []store.SortSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		out = append(out, store.SortSpec{Field: field, Desc: strings.EqualFold(dir, "desc")})
	}
	return out
}
