package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/metrics"
	pkgredis "github.com/lk2023060901/pricehunt-backend/internal/pkg/redis"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache shares cached responses between instances. Entries are JSON
// strings with a TTL. A sorted set scored by insertion time tracks their
// order for capacity eviction.
type RedisCache struct {
	client   *pkgredis.Client
	capacity int
	logger   *logger.Logger
}

// NewRedisCache creates a Redis backed cache.
func NewRedisCache(client *pkgredis.Client, capacity int, log *logger.Logger) *RedisCache {
	if capacity <= 0 {
		capacity = DefaultConfig().Capacity
	}
	return &RedisCache{client: client, capacity: capacity, logger: log.Named("cache")}
}

func (c *RedisCache) entryKey(key string) string {
	return c.client.Key("search", "result", key)
}

func (c *RedisCache) indexKey() string {
	return c.client.Key("search", "result-index")
}

func (c *RedisCache) Get(ctx context.Context, key string) (*types.SearchResponse, bool) {
	data, err := c.client.Get(ctx, c.entryKey(key))
	if err != nil {
		switch {
		case pkgredis.IsNil(err):
			// expired, drop the stale index member
			_, _ = c.client.ZRem(ctx, c.indexKey(), c.entryKey(key))
		case !pkgredis.IsClosed(err):
			c.logger.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	resp, err := decode(data)
	if err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_, _ = c.client.Del(ctx, c.entryKey(key))
		return nil, false
	}
	return resp, true
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *types.SearchResponse, ttl time.Duration) error {
	data, err := encode(resp)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = types.DefaultCacheTTL
	}

	entry := c.entryKey(key)
	err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, entry, data, ttl)
		p.ZAdd(ctx, c.indexKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: entry})
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	return c.evict(ctx)
}

// evict removes the oldest entries beyond capacity.
func (c *RedisCache) evict(ctx context.Context) error {
	n, err := c.client.ZCard(ctx, c.indexKey())
	if err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	over := n - int64(c.capacity)
	if over <= 0 {
		return nil
	}

	oldest, err := c.client.ZRange(ctx, c.indexKey(), 0, over-1)
	if err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	if len(oldest) == 0 {
		return nil
	}

	members := make([]any, len(oldest))
	for i, m := range oldest {
		members[i] = m
	}
	err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, oldest...)
		p.ZRem(ctx, c.indexKey(), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	metrics.CacheEvictionsTotal.Add(float64(len(oldest)))
	return nil
}

func (c *RedisCache) Len(ctx context.Context) int {
	n, err := c.client.ZCard(ctx, c.indexKey())
	if err != nil {
		return 0
	}
	return int(n)
}
