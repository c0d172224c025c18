// Package cache provides a small thread-safe TTL cache.
//
// The relay uses it only for transport credentials (installation access tokens).
// Repository state such as labels and branches is never cached.
package cache

import (
	"sync"
	"time"
)

// Entry holds a cached value with expiration.
type Entry[V any] struct {
	value      V
	expiration time.Time
}

// Cache provides thread-safe caching with TTL.
type Cache[V any] struct {
	now     func() time.Time
	entries map[string]Entry[V]
	mu      sync.RWMutex
	ttl     time.Duration
}

// New creates a new cache with the specified default TTL.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]Entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a value from cache if not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if c.now().After(entry.expiration) {
		c.mu.Lock()
		// Double-check after lock upgrade; a writer may have refreshed the entry.
		if e, ok := c.entries[key]; ok && c.now().After(e.expiration) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return entry.value, true
}

// Set stores a value in cache with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry[V]{
		value:      value,
		expiration: c.now().Add(ttl),
	}
}

// SetUntil stores a value that expires at the given instant.
func (c *Cache[V]) SetUntil(key string, value V, expiration time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry[V]{
		value:      value,
		expiration: expiration,
	}
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Prune removes expired entries and returns how many were dropped.
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiration) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
