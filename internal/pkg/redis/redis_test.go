package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromUniversal(rdb, DefaultConfig(), logger.NewNop()), mr
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.Addr = "" }, wantErr: true},
		{name: "sentinel without master", mutate: func(c *Config) {
			c.Mode = ModeSentinel
			c.SentinelAddrs = []string{"a:26379"}
		}, wantErr: true},
		{name: "bad mode", mutate: func(c *Config) { c.Mode = "cluster" }, wantErr: true},
		{name: "bad db", mutate: func(c *Config) { c.DB = 16 }, wantErr: true},
		{name: "idle above pool", mutate: func(c *Config) { c.MinIdleConns = 100 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	c, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer c.Close()

	mr.Close()
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = 0
	_, err = New(cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestStringOps(t *testing.T) {
	c, mr := setupTestClient(t)
	ctx := context.Background()

	key := c.Key("search", "abc")
	assert.Equal(t, "pricehunt:search:abc", key)

	require.NoError(t, c.Set(ctx, key, "v", time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, key)
	assert.True(t, IsNil(err))

	n, err := c.Del(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSortedSetOps(t *testing.T) {
	c, _ := setupTestClient(t)
	ctx := context.Background()

	err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, "z", redis.Z{Score: 2, Member: "b"}, redis.Z{Score: 1, Member: "a"})
		return nil
	})
	require.NoError(t, err)

	members, err := c.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)

	_, err = c.ZRem(ctx, "z", "a")
	require.NoError(t, err)
	n, err := c.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
