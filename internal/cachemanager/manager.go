// Package cachemanager memoizes expensive lookups. The catalog uses it to
// skip re-parsing workflow headers whose file content has not changed.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a keyed cache with per-entry TTLs.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// Set stores value; a zero ttl uses the cache's default expiration.
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Len() int
}
