package cache

import (
	"sync"
	"time"
)

// Package cache provides a bounded in-memory TTL cache for derived query
// results (aggregations, report fragments).
//
//   - Entries expire after a fixed TTL and are never served once expired.
//   - The cache holds at most maxEntries values; inserting into a full cache
//     first drops expired entries, then the entry closest to expiry.
//   - A background sweeper evicts expired entries every 2×TTL until Stop.

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// TTLCache is a concurrency-safe, size-bounded TTL cache.
type TTLCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits   uint64
	misses uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a cache and starts its background sweeper.
func New[V any](ttl time.Duration, maxEntries int) *TTLCache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	c := &TTLCache[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key for one TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
		if len(c.entries) >= c.maxEntries {
			c.dropSoonestLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate removes key.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len is the number of stored entries, expired ones included until swept.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit/miss counters.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// Stop terminates the background sweeper. Safe to call more than once.
func (c *TTLCache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *TTLCache[V]) sweep() {
	ticker := time.NewTicker(2 * c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictLocked()
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

func (c *TTLCache[V]) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *TTLCache[V]) dropSoonestLocked() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(soonest) {
			victim, soonest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
