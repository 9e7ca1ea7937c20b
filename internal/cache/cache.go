// Package cache provides a bounded TTL cache for external-call results,
// keyed by request fingerprint. Eviction removes expired entries first,
// then the least-hit entries until the cache fits its capacity.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	value     any
	expiresAt time.Time
	hitCount  int
	storedAt  time.Time
}

// Cache is a process-local response cache. It is not shared across instances.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	now      func() time.Time
	hits     int64
	misses   int64
	logger   *zap.Logger
}

// New creates a cache holding at most capacity entries.
func New(capacity int, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the time source, for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Fingerprint returns a stable key for arbitrary request bytes.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key, if present and unexpired.
// A hit increments the entry's hit count.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	e.hitCount++
	c.hits++
	return e.value, true
}

// Set stores value under key for the given TTL, evicting as needed.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:     value,
		expiresAt: now.Add(ttl),
		storedAt:  now,
	}
	if len(c.entries) > c.capacity {
		c.evict(now)
	}
}

// evict removes expired entries first, then lowest-hit entries until the
// cache fits its capacity. Caller holds the lock.
func (c *Cache) evict(now time.Time) {
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}

	for len(c.entries) > c.capacity {
		var victim string
		lowest := -1
		var oldest time.Time
		for key, e := range c.entries {
			if lowest == -1 || e.hitCount < lowest ||
				(e.hitCount == lowest && e.storedAt.Before(oldest)) {
				victim = key
				lowest = e.hitCount
				oldest = e.storedAt
			}
		}
		delete(c.entries, victim)
	}
	c.logger.Debug("cache evicted down to capacity", zap.Int("size", len(c.entries)))
}

// Len returns the number of live entries, counting unexpired ones only.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Stats reports cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
