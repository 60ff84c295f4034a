// Package cache defines the read-through cache boundary used by the
// document store's per-document read cache. The document store only ever
// depends on the Cache interface; TTLCache and RedisCache are the two
// concrete drivers selected by the `cache_type` config option.
package cache

import (
	"context"
	"time"
)

// Cache is a namespaced key-value store with TTL semantics. Keys are
// typically "<entity>/<id>"; values are the JSON-encoded document bytes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix invalidates every key under a prefix (e.g. an entire
	// entity). The document store itself deletes single keys only.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}
