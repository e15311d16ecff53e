package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
)

// DefaultLRUSize is the number of results kept by the in-process cache.
const DefaultLRUSize = 1000

// LRUCache keeps results in process memory with a per-entry TTL.
type LRUCache struct {
	entries *expirable.LRU[string, *domain.SearchResult]

	mu    sync.Mutex
	epoch Generation // bumped by every purge
}

// NewLRUCache creates an in-process result cache.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = DefaultLRUSize
	}
	return &LRUCache{entries: expirable.NewLRU[string, *domain.SearchResult](size, nil, ttl)}
}

// Get returns a shallow copy of the cached result; callers may set scalar
// fields on it but must not modify its hits or facets.
func (c *LRUCache) Get(_ context.Context, key string) (*domain.SearchResult, Generation, bool) {
	c.mu.Lock()
	gen := c.epoch
	c.mu.Unlock()

	res, ok := c.entries.Get(key)
	if !ok {
		return nil, gen, false
	}
	cp := *res
	return &cp, gen, true
}

// Set stores result unless the cache was purged since gen was read.
func (c *LRUCache) Set(_ context.Context, key string, gen Generation, result *domain.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.epoch {
		return
	}
	cp := *result
	c.entries.Add(key, &cp)
}

func (c *LRUCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries.Purge()
	return nil
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int { return c.entries.Len() }
