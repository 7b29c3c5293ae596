package cachemanager

import (
	"context"
	"sync/atomic"
	"time"
)

// LoadFunc computes the value for input on a cache miss.
type LoadFunc[V any, I any] func(ctx context.Context, input I) (V, error)

// Stats counts lookups served by a ReadThroughCache since creation or the
// last ResetStats.
type Stats struct {
	Hits   int64
	Misses int64
}

// ReadThroughCache computes values with load on a miss and caches
// successes. Errors are never cached, so a file that fails to parse is
// parsed again on the next scan.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache  CacheManager[K, V]
	load   LoadFunc[V, I]
	bypass bool

	hits   atomic.Int64
	misses atomic.Int64
}

// NewReadThroughCache wraps cache. With bypass set, or a nil cache, every
// Get calls load.
func NewReadThroughCache[K comparable, V any, I any](cache CacheManager[K, V], load LoadFunc[V, I], bypass bool) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{cache: cache, load: load, bypass: bypass}
}

// Enabled reports whether values are being cached.
func (r *ReadThroughCache[K, V, I]) Enabled() bool {
	return !r.bypass && r.cache != nil
}

// Get returns the cached value for key, or loads it from input.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if !r.Enabled() {
		return r.load(ctx, input)
	}
	if value, ok := r.cache.Get(ctx, key); ok {
		r.hits.Add(1)
		return value, nil
	}
	r.misses.Add(1)

	value, err := r.load(ctx, input)
	if err != nil {
		return value, err
	}
	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}

// Stats returns the hit and miss counts.
func (r *ReadThroughCache[K, V, I]) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}

// ResetStats zeroes the counters and returns the values they held.
func (r *ReadThroughCache[K, V, I]) ResetStats() Stats {
	return Stats{Hits: r.hits.Swap(0), Misses: r.misses.Swap(0)}
}
