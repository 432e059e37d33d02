// Package cache provides a small TTL cache used by the orchestrator to avoid
// redundant profile fetches on token refresh and repeated navigation. It is
// not exported; callers outside authflow never observe it.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// TTL is a mutex-guarded map with per-entry expiry and a soft entry cap.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	clock   func() time.Time
	entries map[string]entry[V]
}

// New returns a TTL cache. A non-positive ttl disables caching entirely:
// Get always misses. max <= 0 means unbounded.
func New[V any](ttl time.Duration, max int) *TTL[V] {
	return &TTL[V]{
		ttl:     ttl,
		max:     max,
		clock:   time.Now,
		entries: make(map[string]entry[V]),
	}
}

// SetClock overrides the time source. Intended for tests.
func (c *TTL[V]) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Get returns the cached value for key if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	if c.ttl <= 0 {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.clock().Before(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, evicting the oldest entry when the cap is hit.
func (c *TTL[V]) Put(key string, value V) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.max > 0 && len(c.entries) >= c.max {
		if _, exists := c.entries[key]; !exists {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, storedAt: now, expiresAt: now.Add(c.ttl)}
}

// Delete removes key if present.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry.
func (c *TTL[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len reports the number of entries, expired ones included.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[V]) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
