package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/graph"
)

func newTestStore(t *testing.T, opts Options) (*Store, graph.Index) {
	t.Helper()
	dataRoot := t.TempDir()
	schemaRoot := t.TempDir()
	opts.DataRoot = dataRoot
	opts.SchemaRoot = schemaRoot
	opts.SchemaName = "default"

	edges := graph.NewMemoryIndex()
	s, err := New(opts, edges, nil)
	require.NoError(t, err)
	return s, edges
}

func TestStore_CreateGetRoundtrip(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	doc, err := s.Create(ctx, "users", Document{"name": "ada"})
	require.NoError(t, err)
	require.NotZero(t, doc.ID())

	got, err := s.Get(ctx, "users", doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "ada", got["name"])
}

func TestStore_SaveConflict(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.Save(ctx, "users", 7, Document{"name": "ada"})
	require.NoError(t, err)

	_, err = s.Save(ctx, "users", 7, Document{"name": "again"})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConflict, apiErr.Kind)
}

func TestStore_PatchNullPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("store keeps explicit null", func(t *testing.T) {
		s, _ := newTestStore(t, Options{PatchNull: PatchNullStore})
		doc, err := s.Create(ctx, "users", Document{"name": "ada", "bio": "hi"})
		require.NoError(t, err)

		patched, err := s.Patch(ctx, "users", doc.ID(), Document{"bio": nil})
		require.NoError(t, err)
		v, present := patched["bio"]
		assert.True(t, present)
		assert.Nil(t, v)
	})

	t.Run("delete removes the field on null", func(t *testing.T) {
		s, _ := newTestStore(t, Options{PatchNull: PatchNullDelete})
		doc, err := s.Create(ctx, "users", Document{"name": "ada", "bio": "hi"})
		require.NoError(t, err)

		patched, err := s.Patch(ctx, "users", doc.ID(), Document{"bio": nil})
		require.NoError(t, err)
		_, present := patched["bio"]
		assert.False(t, present)
	})
}

func TestStore_DeleteNonCascadeBlockedByReference(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	author, err := s.Create(ctx, "authors", Document{"name": "ada"})
	require.NoError(t, err)

	s.schema.Put("posts", EntitySchema{
		"author": {Type: FieldRef, Entity: "authors"},
	})

	_, err = s.Create(ctx, "posts", Document{"author": map[string]any{"id": author.ID()}})
	require.NoError(t, err)

	err = s.Delete(ctx, "authors", author.ID(), false)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindIntegrity, apiErr.Kind)
}

func TestStore_DeleteCascadeRemovesReferrers(t *testing.T) {
	s, _ := newTestStore(t, Options{CascadingDelete: true})
	ctx := context.Background()

	author, err := s.Create(ctx, "authors", Document{"name": "ada"})
	require.NoError(t, err)

	s.schema.Put("posts", EntitySchema{
		"author": {Type: FieldRef, Entity: "authors"},
	})

	post, err := s.Create(ctx, "posts", Document{"author": map[string]any{"id": author.ID()}})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "authors", author.ID(), true))

	_, err = s.Get(ctx, "posts", post.ID())
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindNotFound, apiErr.Kind)
}

func TestStore_ListPaginationAndSort(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, "users", Document{"rank": float64(5 - i)})
		require.NoError(t, err)
	}

	docs, total, err := s.List(ctx, "users", Page{Page: 1, PerPage: 2}, []SortSpec{{Field: "rank"}})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, docs, 2)
	assert.Equal(t, float64(1), docs[0]["rank"])
	assert.Equal(t, float64(2), docs[1]["rank"])
}

func TestStore_SearchScopedToField(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.Create(ctx, "users", Document{"name": "ada lovelace"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "users", Document{"name": "alan turing"})
	require.NoError(t, err)

	docs, total, err := s.Search(ctx, "users", "name", "ada", Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "ada lovelace", docs[0]["name"])
}
