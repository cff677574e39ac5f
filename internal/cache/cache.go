package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"genrouter/internal/core"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRUCache is a thread-safe, capacity-bounded LRU cache whose entries also
// expire after a per-entry TTL. Expired entries are dropped on read and by a
// periodic sweep.
type LRUCache[V any] struct {
	capacity int
	mu       sync.Mutex
	items    *simplelru.LRU[string, entry[V]]
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// NewCache creates a cache holding at most capacity items and starts its
// sweeper. A non-positive capacity uses core.CacheDefaultCapacity.
func NewCache[V any](capacity int) *LRUCache[V] {
	if capacity <= 0 {
		capacity = core.CacheDefaultCapacity
	}
	// NewLRU only fails for a non-positive size.
	items, _ := simplelru.NewLRU[string, entry[V]](capacity, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c := &LRUCache[V]{
		capacity: capacity,
		items:    items,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	go c.sweepLoop()
	return c
}

func (c *LRUCache[V]) sweepLoop() {
	ticker := time.NewTicker(core.CacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop terminates the sweeper goroutine.
func (c *LRUCache[V]) Stop() {
	c.cancel()
}

// Set stores value under key for ttl, marking it most recently used. A
// non-positive ttl stores an already expired entry.
func (c *LRUCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Get returns the live value for key.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	if e.expired(c.now()) {
		c.items.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Delete removes key, reporting whether it was present.
func (c *LRUCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Remove(key)
}

// Len returns the number of stored items, expired ones included.
func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

func (c *LRUCache[V]) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.items.Keys() {
		if e, ok := c.items.Peek(key); ok && e.expired(now) {
			c.items.Remove(key)
		}
	}
}

// Clear drops every entry.
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
}

// ModelCacheKey creates the cache key for a model id
func ModelCacheKey(modelID string) string {
	return fmt.Sprintf("model:%s:%s", core.CacheKeyVersion, modelID)
}

// TruncateCacheKey safely truncates cache key for log display
func TruncateCacheKey(key string, maxLen int) string {
	if len(key) <= maxLen {
		return key
	}
	return key[:maxLen]
}
