// Package httpapi exposes the document store, graph overlay, Sulpher
// query engine and async job manager over a REST surface. Routing, the
// middleware chain and the server lifecycle (New/Start/Stop/Stats) follow
// a plain net/http.Server wrapped with atomic request counters and
// recovery/logging middleware.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ha1tch/rserv/internal/algo"
	"github.com/ha1tch/rserv/internal/config"
	"github.com/ha1tch/rserv/internal/graph"
	"github.com/ha1tch/rserv/internal/jobs"
	"github.com/ha1tch/rserv/internal/store"
	"github.com/ha1tch/rserv/internal/sulpher"
)

// Server is the REST API process: one document Store, one graph Index,
// one Sulpher Executor and one async job Manager, wired together and
// served over HTTP.
type Server struct {
	cfg   *config.Config
	docs  *store.Store
	edges graph.Index
	exec  *sulpher.Executor
	jobs  *jobs.Manager
	log   zerolog.Logger

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// BuildExecutor wires a Sulpher executor over edges and docs, suitable
// both for the Server itself and, bound through ExecuteQuery in a
// closure, for jobs.NewManager's Executor argument — built once in
// cmd/sulpherd and shared so the job manager and the synchronous query
// path see the same traversal bound.
func BuildExecutor(cfg *config.Config, docs *store.Store, edges graph.Index) *sulpher.Executor {
	if edges == nil {
		return nil
	}
	return sulpher.NewExecutor(edges, func(n graph.NodeRef) (map[string]any, bool) {
		doc, err := docs.Get(context.Background(), n.Entity, n.ID)
		if err != nil {
			return nil, false
		}
		return doc, true
	}, cfg.Query.MaxDepth)
}

// New wires a Server from its already-constructed collaborators. Callers
// (cmd/sulpherd) own the lifecycle of docs/edges/jobs and must Close them
// after Stop returns.
func New(cfg *config.Config, docs *store.Store, edges graph.Index, exec *sulpher.Executor, jobMgr *jobs.Manager, log zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		docs:  docs,
		edges: edges,
		exec:  exec,
		jobs:  jobMgr,
		log:   log,
	}
}

// ExecuteQuery runs q through exec, applying maxDepth as a per-call
// override of the executor's configured traversal bound when positive. A
// nil exec reports the graph engine as disabled. It satisfies the
// jobs.Executor function type once exec is bound via a closure, and is
// also called directly by Server.Execute.
func ExecuteQuery(exec *sulpher.Executor, q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
	if exec == nil {
		return nil, fmt.Errorf("graph engine disabled")
	}
	if maxDepth > 0 {
		return exec.ExecuteWithMaxDepth(q, maxDepth)
	}
	return exec.Execute(q)
}

// Execute runs a parsed query through the Server's wired executor. It
// satisfies the jobs.Executor function type.
func (s *Server) Execute(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
	return ExecuteQuery(s.exec, q, maxDepth)
}

func (s *Server) propertyLookup(node graph.NodeRef, property string) (any, bool) {
	doc, err := s.docs.Get(context.Background(), node.Entity, node.ID)
	if err != nil {
		return nil, false
	}
	v, ok := doc[property]
	return v, ok
}

var _ algo.PropertyLookup = (*Server)(nil).propertyLookup

// Start opens the listener and begins serving in a background goroutine.
func (s *Server) Start() error {
	if s.closed.Load() {
		return fmt.Errorf("server closed")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.Query.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats reports basic uptime and request/error counters of the Server
// (the graph statistics endpoint reports algo.ComputeStatistics instead).
type Stats struct {
	Uptime       time.Duration `json:"uptime"`
	RequestCount int64         `json:"request_count"`
	ErrorCount   int64         `json:"error_count"`
}

func (s *Server) Stats() Stats {
	return Stats{
		Uptime:       time.Since(s.started),
		RequestCount: s.requestCount.Load(),
		ErrorCount:   s.errorCount.Load(),
	}
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				s.log.Error().Interface("panic", rec).Str("stack", string(buf[:n])).Msg("handler panic")
				s.errorCount.Add(1)
				writeErr(w, r, fmt.Errorf("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
