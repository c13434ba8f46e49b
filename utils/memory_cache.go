package utils

import (
	"sync"
	"time"
)

// cacheItem is a cached value with its expiry
type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

// MemoryCache is an in-memory TTL cache keyed by string.
// A janitor goroutine drops expired entries until Close is called.
type MemoryCache[V any] struct {
	items map[string]cacheItem[V]
	ttl   time.Duration
	mu    sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl
func NewMemoryCache[V any](ttl time.Duration) *MemoryCache[V] {
	c := &MemoryCache[V]{
		items: make(map[string]cacheItem[V]),
		ttl:   ttl,
		stop:  make(chan struct{}),
		now:   time.Now,
	}

	go c.cleanupLoop(time.Minute)

	return c
}

// Set stores a value with the cache's default TTL
func (c *MemoryCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value that expires after ttl
func (c *MemoryCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = cacheItem[V]{
		value:      value,
		expiration: c.now().Add(ttl),
	}
}

// Get retrieves a value that has not expired yet
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		var zero V
		return zero, false
	}
	if c.now().After(item.expiration) {
		c.Delete(key)
		var zero V
		return zero, false
	}
	return item.value, true
}

// Delete removes an item from cache
func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// DeleteFunc removes every item whose key and value match fn
func (c *MemoryCache[V]) DeleteFunc(fn func(key string, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, item := range c.items {
		if fn(k, item.value) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Clear removes all items from cache
func (c *MemoryCache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]cacheItem[V])
	c.mu.Unlock()
}

// Keys returns all keys currently held, expired or not
func (c *MemoryCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Size returns the number of items in cache
func (c *MemoryCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the janitor goroutine. The cache stays usable.
func (c *MemoryCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache[V]) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}
