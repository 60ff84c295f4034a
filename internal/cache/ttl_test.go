package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGetRoundtrip(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "users/1", []byte(`{"id":1}`), time.Minute))

	v, ok := c.Get(ctx, "users/1")
	require.True(t, ok)
	assert.Equal(t, `{"id":1}`, string(v))
}

func TestTTLCache_MissingKey(t *testing.T) {
	c := NewTTLCache()
	_, ok := c.Get(context.Background(), "users/missing")
	assert.False(t, ok)
}

func TestTTLCache_ExpiresAfterTTL(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "users/1", []byte("v"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get(ctx, "users/1")
	assert.False(t, ok)
}

func TestTTLCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "users/1", []byte("v"), 0))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "users/1")
	assert.True(t, ok)
}

func TestTTLCache_Delete(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "users/1", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "users/1"))

	_, ok := c.Get(ctx, "users/1")
	assert.False(t, ok)
}

func TestTTLCache_DeletePrefix(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "users/1", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "users/2", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "posts/1", []byte("v"), time.Minute))

	require.NoError(t, c.DeletePrefix(ctx, "users/"))

	_, ok := c.Get(ctx, "users/1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "users/2")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "posts/1")
	assert.True(t, ok)
}
