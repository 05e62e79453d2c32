package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/metrics"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

type memoryEntry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = oldest insert
	entries  map[string]*list.Element
	now      func() time.Time
}

// NewMemoryCache creates a cache holding at most capacity entries.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultConfig().Capacity
	}
	return &MemoryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*types.SearchResponse, bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		c.mu.Unlock()
		return nil, false
	}
	data := e.data
	c.mu.Unlock()

	resp, err := decode(data)
	if err != nil {
		return nil, false
	}
	return resp, true
}

// Set stores resp. Overwriting a key counts as a new insertion.
func (c *MemoryCache) Set(_ context.Context, key string, resp *types.SearchResponse, ttl time.Duration) error {
	data, err := encode(resp)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = types.DefaultCacheTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	c.entries[key] = c.order.PushBack(&memoryEntry{key: key, data: data, expiresAt: c.now().Add(ttl)})

	for c.order.Len() > c.capacity {
		c.remove(c.order.Front())
		metrics.CacheEvictionsTotal.Inc()
	}
	return nil
}

func (c *MemoryCache) Len(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// must hold c.mu
func (c *MemoryCache) remove(el *list.Element) {
	e := c.order.Remove(el).(*memoryEntry)
	delete(c.entries, e.key)
}
