package throttle

import (
	"context"
	"sync"
	"time"
)

// HeightSource fetches the latest block height.
type HeightSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// HeadCache caches CurrentHeight to reduce redundant RPC calls from
// callers that poll often, such as health checks.
type HeadCache struct {
	source HeightSource
	ttl    time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(source HeightSource, ttl time.Duration) *HeadCache {
	return &HeadCache{
		source: source,
		ttl:    ttl,
	}
}

// CurrentHeight returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *HeadCache) CurrentHeight(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.source.CurrentHeight(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cached = head
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return head, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
