package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type parseInput struct {
	path    string
	content string
}

// countingParser returns the file content length as the parsed value.
func countingParser(calls *int, err error) LoadFunc[*exampleStruct, parseInput] {
	return func(_ context.Context, in parseInput) (*exampleStruct, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return &exampleStruct{ID: len(in.content)}, nil
	}
}

func TestReadThroughCache_SameDigestServedFromCache(t *testing.T) {
	calls := 0
	cache := NewInMemoryCacheManager[*exampleStruct]("parse", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *exampleStruct, parseInput](cache, countingParser(&calls, nil), false)
	require.True(t, rt.Enabled())

	ctx := context.Background()
	v, err := rt.Get(ctx, "a.py@d1", parseInput{"a.py", "abc"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, v.ID)

	v, err = rt.Get(ctx, "a.py@d1", parseInput{"a.py", "abcdef"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, v.ID, "same key is not parsed again")
	require.Equal(t, 1, calls)

	v, err = rt.Get(ctx, "a.py@d2", parseInput{"a.py", "abcdef"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 6, v.ID, "a new digest is a miss")

	require.Equal(t, Stats{Hits: 1, Misses: 2}, rt.Stats())
	require.Equal(t, Stats{Hits: 1, Misses: 2}, rt.ResetStats())
	require.Equal(t, Stats{}, rt.Stats())
}

func TestReadThroughCache_Bypass(t *testing.T) {
	calls := 0
	cache := NewInMemoryCacheManager[*exampleStruct]("parse", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *exampleStruct, parseInput](cache, countingParser(&calls, nil), true)
	require.False(t, rt.Enabled())

	ctx := context.Background()
	_, _ = rt.Get(ctx, "k", parseInput{"a.py", "x"}, time.Minute)
	_, _ = rt.Get(ctx, "k", parseInput{"a.py", "x"}, time.Minute)
	require.Equal(t, 2, calls)
	require.Equal(t, 0, cache.Len())
	require.Equal(t, Stats{}, rt.Stats(), "bypassed lookups are not counted")
}

func TestReadThroughCache_ErrorsNotCached(t *testing.T) {
	calls := 0
	boom := errors.New("bad header")
	cache := NewInMemoryCacheManager[*exampleStruct]("parse", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *exampleStruct, parseInput](cache, countingParser(&calls, boom), false)

	ctx := context.Background()
	_, err := rt.Get(ctx, "k", parseInput{"a.py", "x"}, time.Minute)
	require.ErrorIs(t, err, boom)
	_, err = rt.Get(ctx, "k", parseInput{"a.py", "x"}, time.Minute)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)
	require.Equal(t, 0, cache.Len())
}

func TestReadThroughCache_NilCache(t *testing.T) {
	calls := 0
	rt := NewReadThroughCache[string, *exampleStruct, parseInput](nil, countingParser(&calls, nil), false)
	require.False(t, rt.Enabled())

	v, err := rt.Get(context.Background(), "k", parseInput{"a.py", "xyz"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, v.ID)
}
