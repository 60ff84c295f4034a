// Package jobs implements the asynchronous Sulpher query execution
// pipeline: pending -> running -> {completed, failed}, backed by a bounded
// worker pool and an LRU+TTL result cache keyed by canonicalized query
// string.
package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/sulpher"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one asynchronous Sulpher query execution.
type Job struct {
	ID          string
	Query       string
	MaxDepth    int
	Status      Status
	Result      *sulpher.Result
	Err         error
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Executor runs a parsed query with a per-call maxDepth override (<= 0
// leaves the underlying executor's own configured bound in place).
// Manager depends on this function type rather than *sulpher.Executor
// directly so tests can substitute a fake.
type Executor func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error)

// Manager runs submitted Sulpher queries on a bounded worker pool, caching
// completed results by canonical query string and invalidating that cache
// on any document-store write: submitting the same canonical Sulpher
// string twice returns the same result until an invalidating write
// occurs.
type Manager struct {
	run Executor
	log zerolog.Logger

	cache *lru.LRU[string, *sulpher.Result]

	mu   sync.RWMutex
	jobs map[string]*Job

	queue    chan *Job
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Options configures a Manager.
type Options struct {
	Workers       int
	QueueSize     int
	CacheSize     int
	CacheTTL      time.Duration
	DefaultDepth  int
	Log           zerolog.Logger
}

// NewManager starts workers goroutines draining a bounded job queue.
func NewManager(run Executor, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	m := &Manager{
		run:      run,
		log:      opts.Log,
		cache:    lru.NewLRU[string, *sulpher.Result](opts.CacheSize, nil, opts.CacheTTL),
		jobs:     make(map[string]*Job),
		queue:    make(chan *Job, opts.QueueSize),
		stopChan: make(chan struct{}),
	}

	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go m.workerLoop()
	}
	return m
}

func (m *Manager) workerLoop() {
	defer m.wg.Done()
	for {
		select {
		case job := <-m.queue:
			m.runJob(job)
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) runJob(job *Job) {
	m.setStatus(job.ID, StatusRunning, nil, nil)

	parsed, err := sulpher.Parse(job.Query)
	if err != nil {
		m.setStatus(job.ID, StatusFailed, nil, err)
		return
	}

	result, err := m.run(parsed, job.MaxDepth)
	if err != nil {
		m.setStatus(job.ID, StatusFailed, nil, err)
		return
	}

	m.cache.Add(CanonicalizeQuery(job.Query), result)
	m.setStatus(job.ID, StatusCompleted, result, nil)
}

func (m *Manager) setStatus(id string, status Status, result *sulpher.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	job.Status = status
	job.Result = result
	job.Err = err
	if status == StatusCompleted || status == StatusFailed {
		job.CompletedAt = time.Now()
	}
}

// SubmissionResult reports whether a submission was served immediately
// from cache (cached queries answer 200 synchronously) or queued as a
// new asynchronous job (202, poll by JobID).
type SubmissionResult struct {
	Cached bool
	Result *sulpher.Result
	JobID  string
}

// Submit canonicalizes query, returns a cached result on a hit, or
// enqueues a new job and returns its id.
func (m *Manager) Submit(ctx context.Context, query string, maxDepth int) (SubmissionResult, error) {
	canonical := CanonicalizeQuery(query)
	if cached, ok := m.cache.Get(canonical); ok {
		return SubmissionResult{Cached: true, Result: cached}, nil
	}

	job := &Job{
		ID:          uuid.NewString(),
		Query:       query,
		MaxDepth:    maxDepth,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	select {
	case m.queue <- job:
	default:
		select {
		case m.queue <- job:
		case <-ctx.Done():
			return SubmissionResult{}, apierr.Wrap(apierr.KindTimeout, "job queue full", ctx.Err())
		}
	}

	return SubmissionResult{JobID: job.ID}, nil
}

// Status returns the current state of a job, or NotFound.
func (m *Manager) Status(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, apierr.NotFound("job")
	}
	snapshot := *job
	return &snapshot, nil
}

// InvalidateAll drops every cached query result — called after any
// document-store write. This is the conservative, prototyping-scale
// policy: any write invalidates everything.
func (m *Manager) InvalidateAll() {
	m.cache.Purge()
}

// Close stops the worker pool, waiting for in-flight jobs to finish.
func (m *Manager) Close() {
	close(m.stopChan)
	m.wg.Wait()
}

// CanonicalizeQuery normalises whitespace so that semantically identical
// Sulpher strings share one cache entry.
func CanonicalizeQuery(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}
