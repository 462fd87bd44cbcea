// Package cache provides the in-process TTL cache used for analysis results.
package cache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type item[V any] struct {
	value    V
	storedAt time.Time
}

// Cache maps keys to values that expire a fixed TTL after being stored.
// Expired entries are evicted lazily on read; there is no background sweep
// and no capacity bound.
type Cache[V any] struct {
	mu    sync.RWMutex
	store map[string]item[V]
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		store: map[string]item[V]{},
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the time source. It is meant for tests.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	if now != nil {
		c.now = now
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored under key. An entry whose age has reached the
// TTL is removed and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	entry, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if c.now().Sub(entry.storedAt) < c.ttl {
		return entry.value, true
	}

	c.mu.Lock()
	// Re-check under the write lock: a concurrent Set may have refreshed it.
	if current, exists := c.store[key]; exists && c.now().Sub(current.storedAt) >= c.ttl {
		delete(c.store, key)
	}
	c.mu.Unlock()
	return zero, false
}

// Set stores value under key, replacing any previous entry.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[key] = item[V]{value: value, storedAt: c.now()}
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = map[string]item[V]{}
}

// Size returns the number of stored entries, expired or not.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.store)
}

// Fingerprint returns a deterministic cache key for text. Whitespace runs are
// collapsed and the ends trimmed before hashing.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	return strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}
