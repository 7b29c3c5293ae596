package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type exampleStruct struct {
	ID int
}

func TestInMemoryCacheManager_GetMissing(t *testing.T) {
	cache := NewInMemoryCacheManager[*exampleStruct]("test", DefaultExpiration, DefaultCleanupInterval)

	v, ok := cache.Get(context.Background(), "missing")
	require.False(t, ok)
	require.Nil(t, v)
}

func TestInMemoryCacheManager_SetGet(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[*exampleStruct]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "k", &exampleStruct{ID: 7}, time.Minute)
	v, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, 7, v.ID)
	require.Equal(t, 1, cache.Len())
}

func TestInMemoryCacheManager_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, ok := cache.Get(ctx, "k")
	require.False(t, ok)
}

func TestInMemoryCacheManager_WrongType(t *testing.T) {
	cache := NewInMemoryCacheManager[string]("test", DefaultExpiration, DefaultCleanupInterval)
	cache.cache.Set("k", 42, time.Minute)

	_, ok := cache.Get(context.Background(), "k")
	require.False(t, ok)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", "1", 0)
	cache.Set(ctx, "b", "2", 0)
	cache.Set(ctx, "c", "3", 0)

	require.NoError(t, cache.Delete(ctx))
	require.NoError(t, cache.Delete(ctx, "a"))
	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)
	require.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Flush(ctx))
	require.Equal(t, 0, cache.Len())
}
