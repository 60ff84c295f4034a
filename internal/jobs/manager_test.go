package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/rserv/internal/sulpher"
)

const sampleQuery = `MATCH (a:User) RETURN a.name`

func waitForStatus(t *testing.T, m *Manager, jobID string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Status(jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestManager_SubmitRunsAndCompletes(t *testing.T) {
	runs := 0
	run := func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
		runs++
		return &sulpher.Result{Columns: []string{"a.name"}, Rows: []map[string]any{{"a.name": "ada"}}}, nil
	}
	m := NewManager(run, Options{Workers: 1})
	defer m.Close()

	result, err := m.Submit(context.Background(), sampleQuery, 5)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	require.NotEmpty(t, result.JobID)

	job := waitForStatus(t, m, result.JobID, StatusCompleted)
	require.NotNil(t, job.Result)
	assert.Equal(t, "ada", job.Result.Rows[0]["a.name"])
	assert.Equal(t, 1, runs)
}

func TestManager_SecondSubmitHitsCache(t *testing.T) {
	runs := 0
	run := func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
		runs++
		return &sulpher.Result{Columns: []string{"a.name"}, Rows: []map[string]any{{"a.name": "ada"}}}, nil
	}
	m := NewManager(run, Options{Workers: 1})
	defer m.Close()

	first, err := m.Submit(context.Background(), sampleQuery, 5)
	require.NoError(t, err)
	waitForStatus(t, m, first.JobID, StatusCompleted)

	second, err := m.Submit(context.Background(), sampleQuery, 5)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.NotNil(t, second.Result)
	assert.Equal(t, 1, runs, "cached submission must not re-run the query")
}

func TestManager_InvalidateAllClearsCache(t *testing.T) {
	runs := 0
	run := func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
		runs++
		return &sulpher.Result{Columns: []string{"a.name"}}, nil
	}
	m := NewManager(run, Options{Workers: 1})
	defer m.Close()

	first, err := m.Submit(context.Background(), sampleQuery, 5)
	require.NoError(t, err)
	waitForStatus(t, m, first.JobID, StatusCompleted)

	m.InvalidateAll()

	second, err := m.Submit(context.Background(), sampleQuery, 5)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	waitForStatus(t, m, second.JobID, StatusCompleted)
	assert.Equal(t, 2, runs)
}

func TestManager_FailedJobRecordsError(t *testing.T) {
	run := func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
		return nil, assert.AnError
	}
	m := NewManager(run, Options{Workers: 1})
	defer m.Close()

	submission, err := m.Submit(context.Background(), sampleQuery, 5)
	require.NoError(t, err)

	job := waitForStatus(t, m, submission.JobID, StatusFailed)
	assert.Error(t, job.Err)
}

func TestManager_StatusUnknownJobIsNotFound(t *testing.T) {
	m := NewManager(func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) { return nil, nil }, Options{Workers: 1})
	defer m.Close()

	_, err := m.Status("does-not-exist")
	require.Error(t, err)
}

func TestManager_SubmitThreadsPerRequestMaxDepth(t *testing.T) {
	var seenDepth int
	run := func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
		seenDepth = maxDepth
		return &sulpher.Result{}, nil
	}
	m := NewManager(run, Options{Workers: 1})
	defer m.Close()

	result, err := m.Submit(context.Background(), sampleQuery, 3)
	require.NoError(t, err)
	waitForStatus(t, m, result.JobID, StatusCompleted)

	assert.Equal(t, 3, seenDepth)
}

func TestCanonicalizeQuery(t *testing.T) {
	a := CanonicalizeQuery("MATCH (a:User)   RETURN a.name")
	b := CanonicalizeQuery("MATCH   (a:User) RETURN   a.name")
	assert.Equal(t, a, b)
}
