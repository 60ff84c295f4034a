package algo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/graph"
)

// chain builds a -> b -> c -> d via a "next" edge, for BFS-style tests.
func chain(t *testing.T) (idx *graph.MemoryIndex, a, b, c, d graph.NodeRef) {
	t.Helper()
	idx = graph.NewMemoryIndex()
	a = graph.NodeRef{Entity: "users", ID: 1}
	b = graph.NodeRef{Entity: "users", ID: 2}
	c = graph.NodeRef{Entity: "users", ID: 3}
	d = graph.NodeRef{Entity: "users", ID: 4}
	require.NoError(t, idx.SetOutbound(a, []graph.Ref{{Field: "next", Target: b}}))
	require.NoError(t, idx.SetOutbound(b, []graph.Ref{{Field: "next", Target: c}}))
	require.NoError(t, idx.SetOutbound(c, []graph.Ref{{Field: "next", Target: d}}))
	return
}

func TestShortestPath(t *testing.T) {
	idx, a, b, c, d := chain(t)

	t.Run("same node", func(t *testing.T) {
		path, err := ShortestPath(idx, a, a, 5)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeRef{a}, path)
	})

	t.Run("reachable within depth", func(t *testing.T) {
		path, err := ShortestPath(idx, a, c, 5)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeRef{a, b, c}, path)
	})

	t.Run("unreachable within depth", func(t *testing.T) {
		_, err := ShortestPath(idx, a, d, 2)
		require.Error(t, err)
		apiErr, ok := apierr.As(err)
		require.True(t, ok)
		assert.Equal(t, apierr.KindNotFound, apiErr.Kind)
	})

	t.Run("disconnected node", func(t *testing.T) {
		other := graph.NodeRef{Entity: "users", ID: 99}
		_, err := ShortestPath(idx, a, other, 10)
		require.Error(t, err)
	})
}

func TestPathExists(t *testing.T) {
	idx, a, _, c, _ := chain(t)
	assert.True(t, PathExists(idx, a, c, 5))
	assert.False(t, PathExists(idx, a, c, 1))
}

func TestCommonNeighbors(t *testing.T) {
	idx := graph.NewMemoryIndex()
	a := graph.NodeRef{Entity: "users", ID: 1}
	b := graph.NodeRef{Entity: "users", ID: 2}
	shared := graph.NodeRef{Entity: "users", ID: 3}
	onlyA := graph.NodeRef{Entity: "users", ID: 4}

	require.NoError(t, idx.SetOutbound(a, []graph.Ref{
		{Field: "friends", Target: shared},
		{Field: "friends", Target: onlyA},
	}))
	require.NoError(t, idx.SetOutbound(b, []graph.Ref{
		{Field: "friends", Target: shared},
	}))

	common := CommonNeighbors(idx, a, b)
	require.Len(t, common, 1)
	assert.Equal(t, shared, common[0])
}

func TestDegree(t *testing.T) {
	idx := graph.NewMemoryIndex()
	a := graph.NodeRef{Entity: "users", ID: 1}
	b := graph.NodeRef{Entity: "users", ID: 2}
	c := graph.NodeRef{Entity: "users", ID: 3}

	require.NoError(t, idx.SetOutbound(a, []graph.Ref{{Field: "friends", Target: b}}))
	require.NoError(t, idx.SetOutbound(c, []graph.Ref{{Field: "friends", Target: a}}))

	assert.Equal(t, 1, Degree(idx, a, DirOut))
	assert.Equal(t, 1, Degree(idx, a, DirIn))
	assert.Equal(t, 2, Degree(idx, a, DirAll))
	assert.Equal(t, Degree(idx, a, DirIn)+Degree(idx, a, DirOut), Degree(idx, a, DirAll))
}

func TestNeighborhoodAggregate(t *testing.T) {
	idx := graph.NewMemoryIndex()
	seed := graph.NodeRef{Entity: "users", ID: 1}
	n1 := graph.NodeRef{Entity: "users", ID: 2}
	n2 := graph.NodeRef{Entity: "users", ID: 3}

	require.NoError(t, idx.SetOutbound(seed, []graph.Ref{
		{Field: "friends", Target: n1},
		{Field: "friends", Target: n2},
	}))

	props := map[graph.NodeRef]any{
		n1: float64(10),
		n2: float64(20),
	}
	lookup := func(node graph.NodeRef, property string) (any, bool) {
		v, ok := props[node]
		return v, ok
	}

	t.Run("count", func(t *testing.T) {
		v, err := NeighborhoodAggregate(idx, lookup, seed, 1, "age", AggCount)
		require.NoError(t, err)
		assert.Equal(t, float64(2), v)
	})

	t.Run("sum", func(t *testing.T) {
		v, err := NeighborhoodAggregate(idx, lookup, seed, 1, "age", AggSum)
		require.NoError(t, err)
		assert.Equal(t, float64(30), v)
	})

	t.Run("avg", func(t *testing.T) {
		v, err := NeighborhoodAggregate(idx, lookup, seed, 1, "age", AggAvg)
		require.NoError(t, err)
		assert.Equal(t, float64(15), v)
	})

	t.Run("non-numeric value is a validation error", func(t *testing.T) {
		badLookup := func(node graph.NodeRef, property string) (any, bool) {
			return "not a number", true
		}
		_, err := NeighborhoodAggregate(idx, badLookup, seed, 1, "age", AggSum)
		require.Error(t, err)
		apiErr, ok := apierr.As(err)
		require.True(t, ok)
		assert.Equal(t, apierr.KindValidation, apiErr.Kind)
	})
}

func TestComputeStatistics(t *testing.T) {
	idx := graph.NewMemoryIndex()
	a := graph.NodeRef{Entity: "users", ID: 1}
	b := graph.NodeRef{Entity: "users", ID: 2}
	c := graph.NodeRef{Entity: "users", ID: 3}

	require.NoError(t, idx.SetOutbound(a, []graph.Ref{
		{Field: "friends", Target: b},
		{Field: "friends", Target: c},
	}))

	stats := ComputeStatistics(idx)
	assert.Equal(t, int64(3), stats.NodeCount)
	assert.Equal(t, int64(2), stats.EdgeCount)
	assert.InDelta(t, 2.0/3.0, stats.AverageOutDeg, 0.0001)
}
