package sulpher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/graph"
)

// socialGraph builds alice -> bob -> carol (FRIENDS) plus documents for each,
// the fixture used by the friends-of-friends scenario in the tests below.
func socialGraph(t *testing.T) (*graph.MemoryIndex, map[graph.NodeRef]map[string]any) {
	t.Helper()
	idx := graph.NewMemoryIndex()
	alice := graph.NodeRef{Entity: "users", ID: 1}
	bob := graph.NodeRef{Entity: "users", ID: 2}
	carol := graph.NodeRef{Entity: "users", ID: 3}

	require.NoError(t, idx.SetOutbound(alice, []graph.Ref{{Field: "friends", Target: bob}}))
	require.NoError(t, idx.SetOutbound(bob, []graph.Ref{{Field: "friends", Target: carol}}))

	docs := map[graph.NodeRef]map[string]any{
		alice: {"id": int64(1), "name": "alice", "age": float64(30)},
		bob:   {"id": int64(2), "name": "bob", "age": float64(25)},
		carol: {"id": int64(3), "name": "carol", "age": float64(40)},
	}
	return idx, docs
}

func newTestExecutor(idx graph.Index, docs map[graph.NodeRef]map[string]any) *Executor {
	lookup := func(n graph.NodeRef) (map[string]any, bool) {
		d, ok := docs[n]
		return d, ok
	}
	return NewExecutor(idx, lookup, 10)
}

func TestExecute_FriendsOfFriends(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User {id: 1})-[:FRIENDS]->(b:User)-[:FRIENDS]->(c:User) RETURN c.name`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "carol", result.Rows[0]["c.name"])
}

func TestExecute_WhereFiltersOnProperty(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User)-[:FRIENDS]->(b:User) WHERE b.age > 30 RETURN b.name`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "carol", result.Rows[0]["b.name"])
}

func TestExecute_NotOutboundExcludesExistingFriends(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	// alice -> bob -> carol, but alice has no direct FRIENDS edge to carol,
	// so the NOT-outbound predicate should keep carol as a recommendation.
	q, err := Parse(`MATCH (a:User {id: 1})-[:FRIENDS]->(b:User)-[:FRIENDS]->(c:User) WHERE NOT (a)-[:FRIENDS]->(c) RETURN c.name`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "carol", result.Rows[0]["c.name"])
}

func TestExecute_CountAggregate(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User)-[:FRIENDS]->(b:User) RETURN COUNT(b)`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(2), result.Rows[0]["COUNT(b)"])
}

func TestExecute_OrderByAndLimit(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User) RETURN a.name ORDER BY a.name DESC LIMIT 1`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "carol", result.Rows[0]["a.name"])
}

func TestExecute_WhereEqualitySeedsNarrowedPool(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	// the WHERE equality on a.id drives seed selection (planSeed): of the
	// scanned User nodes only alice is kept as a seed candidate.
	q, err := Parse(`MATCH (a:User)-[:FRIENDS]->(b:User) WHERE a.id = 1 RETURN b.name`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "bob", result.Rows[0]["b.name"])
}

func TestExecute_SumOverNonNumericFieldIsValidationError(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User)-[:FRIENDS]->(b:User) RETURN SUM(b.name)`)
	require.NoError(t, err)

	_, err = exec.Execute(q)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestExecute_VariableLengthZeroIncludesSeed(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User {id: 1})-[:FRIENDS*0..2]->(b:User) RETURN b.name`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		names = append(names, row["b.name"].(string))
	}
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, names)
}

func TestExecute_VariableLengthOneExcludesSeed(t *testing.T) {
	idx, docs := socialGraph(t)
	exec := newTestExecutor(idx, docs)

	q, err := Parse(`MATCH (a:User {id: 1})-[:FRIENDS*1..2]->(b:User) RETURN b.name`)
	require.NoError(t, err)

	result, err := exec.Execute(q)
	require.NoError(t, err)
	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		names = append(names, row["b.name"].(string))
	}
	assert.ElementsMatch(t, []string{"bob", "carol"}, names)
}

func TestParse_RejectsMissingMatch(t *testing.T) {
	_, err := Parse(`RETURN 1`)
	require.Error(t, err)
}

func TestParse_RejectsTrailingInput(t *testing.T) {
	_, err := Parse(`MATCH (a:User) RETURN a.name EXTRA`)
	require.Error(t, err)
}
