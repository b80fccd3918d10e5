// Package cache implements the response cache (C1): a TTL-indexed mapping
// from a DNS question fingerprint to the upstream's wire-format answer.
//
// No LRU eviction and no negative-entry-type TTL tiers: the cache contract
// here wants exactly one thing — a Q -> entry map with TTL-based expiry and
// periodic pruning, unbounded in size modulo that pruning.
package cache

import (
	"sync"
	"time"

	"github.com/nullbind/dohgate/internal/dnsutil"
)

const (
	minTTL     = 1 * time.Second
	maxTTL     = 3600 * time.Second
	defaultTTL = 60 * time.Second
)

// entry holds a cached response and its expiry.
type entry struct {
	response  []byte
	expiresAt time.Time
}

// Cache is a mutex-guarded Q -> entry map. The zero value is not usable;
// construct with New. Safe for concurrent use by many workers.
type Cache struct {
	mu      sync.Mutex
	data    map[dnsutil.Question]entry
	enabled bool
}

// New creates a Cache. When enabled is false, lookups always miss and
// inserts are no-ops, but Prune and Size still function normally.
func New(enabled bool) *Cache {
	return &Cache{
		data:    make(map[dnsutil.Question]entry),
		enabled: enabled,
	}
}

// Lookup returns the cached response and its remaining TTL in seconds for
// q, or ok=false on a miss or disabled cache. Never returns an expired
// entry; remaining is always > 0 when ok is true.
func (c *Cache) Lookup(q dnsutil.Question) (response []byte, remaining int, ok bool) {
	if !c.enabled {
		return nil, 0, false
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.data[q]
	if !found {
		return nil, 0, false
	}
	left := e.expiresAt.Sub(now)
	if left <= 0 {
		delete(c.data, q)
		return nil, 0, false
	}
	return e.response, int(left.Seconds()) + 1, true
}

// Insert stores response under q with ttl clamped to [1s, 3600s], replacing
// any prior entry for q. A ttl of exactly zero stands for "no answer records"
// and uses the 60s default. A no-op when the cache is disabled.
func (c *Cache) Insert(q dnsutil.Question, response []byte, ttl time.Duration) {
	if !c.enabled {
		return
	}
	if ttl == 0 {
		ttl = defaultTTL
	}
	ttl = clampTTL(ttl)

	stored := make([]byte, len(response))
	copy(stored, response)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[q] = entry{response: stored, expiresAt: time.Now().Add(ttl)}
}

// Prune removes every entry whose TTL has elapsed and returns the count
// removed.
func (c *Cache) Prune() int {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.data {
		if !e.expiresAt.After(now) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Size returns the current number of entries (0 when disabled, since
// inserts never happen in that mode).
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// ClampTTL projects ttl into [1s, 3600s]; exported so the resolver can reuse
// the exact same clamping rule it reports back to the caller.
func ClampTTL(ttl time.Duration) time.Duration {
	return clampTTL(ttl)
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < minTTL {
		return minTTL
	}
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}
