// Package cache provides a small TTL cache whose notion of time comes from an
// injected clock, so staleness can be tested without sleeping.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TTL is a thread-safe map whose entries expire a fixed duration after they
// were last set. Expired entries are dropped lazily on lookup.
type TTL[K comparable, V any] struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[K]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTL creates a cache with the given entry lifetime. A nil clock uses real time.
func NewTTL[K comparable, V any](ttl time.Duration, clock clockwork.Clock) *TTL[K, V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTL[K, V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[K]ttlEntry[V]),
	}
}

// Get returns the value for key if it is present and not yet expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !now.Before(e.expiresAt) {
		if ok {
			c.evictIfExpired(key, now)
		}
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and resets its lifetime.
func (c *TTL[K, V]) Set(key K, value V) {
	expiresAt := c.clock.Now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, expiresAt: expiresAt}
}

// Delete removes key if present.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of stored entries, including ones that have expired
// but not yet been looked up.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the configured entry lifetime.
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

func (c *TTL[K, V]) evictIfExpired(key K, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent Set may have refreshed the entry since the read above.
	if e, ok := c.entries[key]; ok && !now.Before(e.expiresAt) {
		delete(c.entries, key)
	}
}
