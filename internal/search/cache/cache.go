// Package cache stores complete search responses keyed by the request
// fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

// Driver selects the cache backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Config configures the result cache.
type Config struct {
	Driver     Driver        `mapstructure:"driver"`
	Capacity   int           `mapstructure:"capacity"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// DefaultConfig returns a 1000 entry in-process cache with a 5 minute TTL.
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		Capacity:   1000,
		DefaultTTL: types.DefaultCacheTTL,
	}
}

func (c *Config) Validate() error {
	if c.Driver != DriverMemory && c.Driver != DriverRedis {
		return errors.New("cache: driver must be memory or redis")
	}
	if c.Capacity <= 0 {
		return errors.New("cache: capacity must be > 0")
	}
	if c.DefaultTTL <= 0 {
		return errors.New("cache: default_ttl must be > 0")
	}
	return nil
}

// Cache is a bounded TTL store of search responses. Once the capacity is
// exceeded the oldest inserted entries are evicted first.
//
// Values are stored serialized, a hit always returns a fresh copy that the
// caller may modify.
type Cache interface {
	Get(ctx context.Context, key string) (*types.SearchResponse, bool)
	Set(ctx context.Context, key string, resp *types.SearchResponse, ttl time.Duration) error
	Len(ctx context.Context) int
}

func encode(resp *types.SearchResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decode(data []byte) (*types.SearchResponse, error) {
	var resp types.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
