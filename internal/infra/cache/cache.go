// Package cache provides a simple in-memory TTL cache.
// In production, this could be backed by Redis.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// InMemory is a thread-safe in-memory cache with TTL. Entries also track
// when they were stored so callers can treat still-valid data as stale
// and refresh it in the background.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	stale time.Duration
}

// New creates a new in-memory cache with the given TTL. Entries are
// never reported stale before they expire.
func New[T any](ttl time.Duration) *InMemory[T] {
	return NewWithStaleness[T](ttl, ttl)
}

// NewWithStaleness creates a cache whose entries expire after ttl and
// are considered stale (still served, but refresh-worthy) after stale.
func NewWithStaleness[T any](ttl, stale time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		stale: stale,
	}
	// Background cleanup goroutine
	go c.cleanup()
	return c
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	v, _, ok := c.GetWithStaleness(key)
	return v, ok
}

// GetWithStaleness retrieves a value and reports whether it is stale.
// Returns ok=false if not found or expired.
func (c *InMemory[T]) GetWithStaleness(key string) (value T, stale bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.items[key]
	if !found {
		var zero T
		return zero, false, false
	}
	age := time.Since(e.storedAt)
	if age > c.ttl {
		var zero T
		return zero, false, false
	}
	return e.value, age > c.stale, true
}

// Set stores a value in the cache with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:    value,
		storedAt: time.Now(),
	}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for k, v := range c.items {
			if now.Sub(v.storedAt) > c.ttl {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}
