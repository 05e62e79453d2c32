package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/pricehunt-backend/internal/pkg/redis"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(query string) *types.SearchResponse {
	return &types.SearchResponse{
		Success: true,
		Query:   query,
		Kind:    types.KindKeyword,
		Results: []*types.SearchResult{
			{Platform: types.PlatformRakuten, ItemID: "1", Title: "Switch", BasePrice: 100, ShippingFee: 10, TotalPrice: 110, Currency: "JPY"},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{Driver: "disk", Capacity: 1, DefaultTTL: time.Second}).Validate())
	assert.Error(t, (&Config{Driver: DriverMemory, Capacity: 0, DefaultTTL: time.Second}).Validate())
}

func TestMemoryCache_HitReturnsIdenticalPayload(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10)
	want := response("switch")

	require.NoError(t, c.Set(ctx, "k", want, time.Minute))

	first, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, want, first)

	// callers get a copy
	first.Results[0].Title = "changed"
	second, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "Switch", second.Results[0].Title)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryCache(10)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", response("a"), time.Minute))
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(ctx))
}

func TestMemoryCache_EvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)

	require.NoError(t, c.Set(ctx, "a", response("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", response("b"), time.Minute))
	// reading does not refresh the position
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", response("c"), time.Minute))

	assert.Equal(t, 2, c.Len(ctx))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_OverwriteIsNewInsertion(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)

	require.NoError(t, c.Set(ctx, "a", response("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", response("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "a", response("a2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", response("c"), time.Minute))

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok)
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Query)
}

func newRedisCache(t *testing.T, capacity int) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := pkgredis.NewFromUniversal(rdb, pkgredis.DefaultConfig(), logger.NewNop())
	return NewRedisCache(client, capacity, logger.NewNop()), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 10)
	want := response("switch")

	require.NoError(t, c.Set(ctx, "k", want, time.Minute))
	assert.True(t, mr.Exists("pricehunt:search:result:k"))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, c.Len(ctx))
}

func TestRedisCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 10)

	require.NoError(t, c.Set(ctx, "k", response("a"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(ctx))
}

func TestRedisCache_EvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t, 2)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, response(k), time.Minute))
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 2, c.Len(ctx))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestRedisCache_UndecodableEntry(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 10)

	require.NoError(t, mr.Set("pricehunt:search:result:bad", "{not json"))
	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists("pricehunt:search:result:bad"))
}
