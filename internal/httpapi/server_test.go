package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/rserv/internal/config"
	"github.com/ha1tch/rserv/internal/graph"
	"github.com/ha1tch/rserv/internal/jobs"
	"github.com/ha1tch/rserv/internal/logging"
	"github.com/ha1tch/rserv/internal/store"
	"github.com/ha1tch/rserv/internal/sulpher"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.DataRoot = t.TempDir()
	cfg.Store.SchemaRoot = t.TempDir()

	edges := graph.NewMemoryIndex()
	docs, err := store.New(store.Options{
		DataRoot:   cfg.Store.DataRoot,
		SchemaRoot: cfg.Store.SchemaRoot,
		SchemaName: cfg.Store.Schema,
	}, edges, nil)
	require.NoError(t, err)

	exec := BuildExecutor(cfg, docs, edges)
	run := func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
		return ExecuteQuery(exec, q, maxDepth)
	}
	jobMgr := jobs.NewManager(run, jobs.Options{Workers: 2, Log: logging.Nop()})
	t.Cleanup(jobMgr.Close)

	return New(cfg, docs, edges, exec, jobMgr, logging.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocuments_CreateGetList(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "ada"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := int64(created.Data["id"].(float64))
	require.NotZero(t, id)

	getRec := doJSON(t, router, http.MethodGet, "/api/v1/users/1", nil)
	assert.Equal(t, http.StatusOK, getRec.Code)

	listRec := doJSON(t, router, http.MethodGet, "/api/v1/users/list", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var listBody struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listBody))
	assert.Equal(t, 1, listBody.Data.Total)
}

func TestDocuments_GetMissingReturns404Envelope(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/users/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var env struct {
		Error struct {
			StatusCode int    `json:"status_code"`
			Message    string `json:"message"`
		} `json:"error"`
		Links map[string]struct {
			Href string `json:"href"`
		} `json:"_links"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 404, env.Error.StatusCode)
	assert.Equal(t, "/api/v1/users/999", env.Links["self"].Href)
}

func TestGraphDegreeEndpoint(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	// "friends" must be declared as a REF field before the store will turn
	// a write into a graph edge.
	s.docs.Schema().Put("users", store.EntitySchema{
		"friends": {Type: store.FieldRef, Entity: "users"},
	})

	// alice references bob via a "friends" field, which the store's edge
	// maintenance should turn into a FRIENDS edge discoverable by degree().
	doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "bob"})
	doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{
		"name":    "alice",
		"friends": map[string]any{"id": 1},
	})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/graph/nodes/users:2/degree?direction=out", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Degree int `json:"degree"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Degree)
}

func TestQuerySubmitAndPoll(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "ada"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/graph/query", map[string]any{
		"query": "MATCH (a:User) RETURN a.name",
	})
	require.Contains(t, []int{http.StatusOK, http.StatusAccepted}, rec.Code)
}

func TestQuerySubmit_PollThenFetchResult(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "ada"})

	submitRec := doJSON(t, router, http.MethodPost, "/api/v1/graph/query", map[string]any{
		"query": "MATCH (a:User) RETURN a.name",
	})
	require.Contains(t, []int{http.StatusOK, http.StatusAccepted}, submitRec.Code)
	if submitRec.Code == http.StatusOK {
		return // cache hit answered inline, nothing left to poll
	}

	var submitted struct {
		Data struct {
			QueryID string `json:"query_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Data.QueryID)

	deadline := time.Now().Add(2 * time.Second)
	var statusRec *httptest.ResponseRecorder
	for time.Now().Before(deadline) {
		statusRec = doJSON(t, router, http.MethodGet, "/api/v1/graph/query/"+submitted.Data.QueryID, nil)
		var status struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
		if status.Data.Status == "completed" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, statusRec)

	resultRec := doJSON(t, router, http.MethodGet, "/api/v1/graph/query/"+submitted.Data.QueryID+"/result", nil)
	assert.Equal(t, http.StatusOK, resultRec.Code)
}

func TestDocuments_SaveReplacePatchDelete(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	saveRec := doJSON(t, router, http.MethodPost, "/api/v1/users/save/1", map[string]any{"name": "ada"})
	require.Equal(t, http.StatusCreated, saveRec.Code)

	replaceRec := doJSON(t, router, http.MethodPut, "/api/v1/users/1", map[string]any{"name": "ada lovelace"})
	require.Equal(t, http.StatusOK, replaceRec.Code)

	patchRec := doJSON(t, router, http.MethodPatch, "/api/v1/users/1", map[string]any{"age": 30})
	require.Equal(t, http.StatusOK, patchRec.Code)
	var patched struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(patchRec.Body.Bytes(), &patched))
	assert.Equal(t, "ada lovelace", patched.Data["name"])
	assert.Equal(t, float64(30), patched.Data["age"])

	deleteRec := doJSON(t, router, http.MethodDelete, "/api/v1/users/1", nil)
	assert.Equal(t, http.StatusOK, deleteRec.Code)

	getRec := doJSON(t, router, http.MethodGet, "/api/v1/users/1", nil)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestDocuments_SaveConflictReturns409(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/users/save/1", map[string]any{"name": "ada"}).Code)
	assert.Equal(t, http.StatusConflict, doJSON(t, router, http.MethodPost, "/api/v1/users/save/1", map[string]any{"name": "other"}).Code)
}

func TestDocuments_SearchScopedToField(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "ada"})
	doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "bob"})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/users/search?field=name&query=ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Total)
}

// socialUsers registers "friends" as a REF field and writes alice -> bob ->
// carol, returning their allocated ids in creation order.
func socialUsers(t *testing.T, s *Server, router http.Handler) (bobID, aliceID, carolID int64) {
	t.Helper()
	s.docs.Schema().Put("users", store.EntitySchema{
		"friends": {Type: store.FieldRef, Entity: "users"},
	})

	bobRec := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "bob"})
	bobID = idFromCreateResponse(t, bobRec)

	aliceRec := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{
		"name":    "alice",
		"friends": map[string]any{"id": bobID},
	})
	aliceID = idFromCreateResponse(t, aliceRec)

	carolRec := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]any{
		"name":    "carol",
		"friends": map[string]any{"id": bobID},
	})
	carolID = idFromCreateResponse(t, carolRec)
	return bobID, aliceID, carolID
}

func idFromCreateResponse(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	var created struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return int64(created.Data["id"].(float64))
}

func TestGraphInOutEdges(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()
	bobID, aliceID, _ := socialUsers(t, s, router)

	outRec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/graph/users:%d/out", aliceID), nil)
	require.Equal(t, http.StatusOK, outRec.Code)

	inRec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/graph/users:%d/in", bobID), nil)
	require.Equal(t, http.StatusOK, inRec.Code)
	var inBody struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(inRec.Body.Bytes(), &inBody))
	assert.Len(t, inBody.Data, 2) // both alice and carol point at bob
}

func TestGraphShortestPathAndPathExists(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()
	bobID, aliceID, _ := socialUsers(t, s, router)

	spRec := doJSON(t, router, http.MethodPost, "/api/v1/graph/shortestPath", map[string]any{
		"start":     map[string]any{"entity": "users", "id": aliceID},
		"end":       map[string]any{"entity": "users", "id": bobID},
		"max_depth": 5,
	})
	require.Equal(t, http.StatusOK, spRec.Code)

	peRec := doJSON(t, router, http.MethodPost, "/api/v1/graph/pathExists", map[string]any{
		"start":     map[string]any{"entity": "users", "id": aliceID},
		"end":       map[string]any{"entity": "users", "id": bobID},
		"max_depth": 5,
	})
	require.Equal(t, http.StatusOK, peRec.Code)
	var peBody struct {
		Data struct {
			Exists bool `json:"exists"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(peRec.Body.Bytes(), &peBody))
	assert.True(t, peBody.Data.Exists)
}

func TestGraphCommonNeighborsAndStatistics(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()
	_, aliceID, carolID := socialUsers(t, s, router)

	cnRec := doJSON(t, router, http.MethodPost, "/api/v1/graph/commonNeighbors", map[string]any{
		"a": map[string]any{"entity": "users", "id": aliceID},
		"b": map[string]any{"entity": "users", "id": carolID},
	})
	require.Equal(t, http.StatusOK, cnRec.Code)
	var cnBody struct {
		Data struct {
			Neighbors []map[string]any `json:"neighbors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(cnRec.Body.Bytes(), &cnBody))
	assert.Len(t, cnBody.Data.Neighbors, 1) // both share bob

	statsRec := doJSON(t, router, http.MethodGet, "/api/v1/graph/statistics", nil)
	assert.Equal(t, http.StatusOK, statsRec.Code)
}

func TestGraphNeighborhoodAggregate(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()
	bobID, _, _ := socialUsers(t, s, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/graph/nodes/neighborhoodAggregate", map[string]any{
		"seed":        map[string]any{"entity": "users", "id": bobID},
		"depth":       1,
		"property":    "name",
		"aggregation": "count",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}
