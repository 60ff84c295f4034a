package httpapi

import "net/http"

// buildRouter registers the REST endpoint table, wrapped in the
// recovery/metrics/logging middleware chain (outermost first).
func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/{entity}", s.handleCreate)
	mux.HandleFunc("GET /api/v1/{entity}/list", s.handleList)
	mux.HandleFunc("GET /api/v1/{entity}/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/{entity}/save/{id}", s.handleSave)
	mux.HandleFunc("GET /api/v1/{entity}/{id}", s.handleGet)
	mux.HandleFunc("PUT /api/v1/{entity}/{id}", s.handleReplace)
	mux.HandleFunc("PATCH /api/v1/{entity}/{id}", s.handlePatch)
	mux.HandleFunc("DELETE /api/v1/{entity}/{id}", s.handleDelete)

	mux.HandleFunc("POST /api/v1/graph/query", s.handleQuerySubmit)
	mux.HandleFunc("GET /api/v1/graph/query/{id}", s.handleQueryStatus)
	mux.HandleFunc("GET /api/v1/graph/query/{id}/result", s.handleQueryResult)
	mux.HandleFunc("POST /api/v1/graph/shortestPath", s.handleShortestPath)
	mux.HandleFunc("POST /api/v1/graph/pathExists", s.handlePathExists)
	mux.HandleFunc("POST /api/v1/graph/commonNeighbors", s.handleCommonNeighbors)
	mux.HandleFunc("GET /api/v1/graph/nodes/{id}", s.handleNode)
	mux.HandleFunc("GET /api/v1/graph/nodes/{id}/degree", s.handleDegree)
	mux.HandleFunc("POST /api/v1/graph/nodes/neighborhoodAggregate", s.handleNeighborhoodAggregate)
	mux.HandleFunc("GET /api/v1/graph/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/v1/graph/{nodeRef}/in", s.handleInEdges)
	mux.HandleFunc("GET /api/v1/graph/{nodeRef}/out", s.handleOutEdges)

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.recoveryMiddleware(s.metricsMiddleware(s.loggingMiddleware(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]any{"status": "ok"})
}
