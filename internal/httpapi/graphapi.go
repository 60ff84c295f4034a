package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ha1tch/rserv/internal/algo"
	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/graph"
)

// nodeRefParam is the JSON `{"entity": ..., "id": ...}` body form of a
// graph.NodeRef; path parameters use the `<entity>:<id>` form parsed by
// parseNodeRefPath.
type nodeRefParam struct {
	Entity string `json:"entity"`
	ID     int64  `json:"id"`
}

func (n nodeRefParam) ref() graph.NodeRef { return graph.NodeRef{Entity: n.Entity, ID: n.ID} }

func parseNodeRefPath(raw string) (graph.NodeRef, error) {
	entity, idStr, ok := strings.Cut(raw, ":")
	if !ok {
		return graph.NodeRef{}, apierr.Newf(apierr.KindValidation, "malformed node reference %q, want entity:id", raw)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return graph.NodeRef{}, apierr.Newf(apierr.KindValidation, "malformed node reference %q, want entity:id", raw)
	}
	return graph.NodeRef{Entity: entity, ID: id}, nil
}

func (s *Server) requireGraph(w http.ResponseWriter, r *http.Request) bool {
	if s.edges == nil {
		writeErr(w, r, apierr.New(apierr.KindValidation, "graph overlay disabled"))
		return false
	}
	return true
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	node, err := parseNodeRefPath(r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	doc, err := s.docs.Get(r.Context(), node.Entity, node.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, doc)
}

func (s *Server) handleDegree(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	node, err := parseNodeRefPath(r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	dir := algo.Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = algo.DirAll
	}
	writeData(w, r, http.StatusOK, map[string]any{"degree": algo.Degree(s.edges, node, dir)})
}

func (s *Server) handleInEdges(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	node, err := parseNodeRefPath(r.PathValue("nodeRef"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, s.edges.Inbound(node))
}

func (s *Server) handleOutEdges(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	node, err := parseNodeRefPath(r.PathValue("nodeRef"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, s.edges.Outbound(node))
}

func (s *Server) handleShortestPath(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	var body struct {
		Start    nodeRefParam `json:"start"`
		End      nodeRefParam `json:"end"`
		MaxDepth int          `json:"max_depth"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	if body.MaxDepth <= 0 {
		body.MaxDepth = s.cfg.Query.MaxDepth
	}
	path, err := algo.ShortestPath(s.edges, body.Start.ref(), body.End.ref(), body.MaxDepth)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"path": path})
}

func (s *Server) handlePathExists(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	var body struct {
		Start    nodeRefParam `json:"start"`
		End      nodeRefParam `json:"end"`
		MaxDepth int          `json:"max_depth"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	if body.MaxDepth <= 0 {
		body.MaxDepth = s.cfg.Query.MaxDepth
	}
	exists := algo.PathExists(s.edges, body.Start.ref(), body.End.ref(), body.MaxDepth)
	writeData(w, r, http.StatusOK, map[string]any{"exists": exists})
}

func (s *Server) handleCommonNeighbors(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	var body struct {
		A nodeRefParam `json:"a"`
		B nodeRefParam `json:"b"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"neighbors": algo.CommonNeighbors(s.edges, body.A.ref(), body.B.ref()),
	})
}

func (s *Server) handleNeighborhoodAggregate(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	var body struct {
		Seed        nodeRefParam   `json:"seed"`
		Depth       int            `json:"depth"`
		Property    string         `json:"property"`
		Aggregation algo.Aggregation `json:"aggregation"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, r, err)
		return
	}
	if body.Depth <= 0 {
		body.Depth = s.cfg.Query.MaxDepth
	}
	result, err := algo.NeighborhoodAggregate(s.edges, s.propertyLookup, body.Seed.ref(), body.Depth, body.Property, body.Aggregation)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !s.requireGraph(w, r) {
		return
	}
	writeData(w, r, http.StatusOK, algo.ComputeStatistics(s.edges))
}
