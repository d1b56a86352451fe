package config

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CacheEntry is one memoized resolution.
type CacheEntry struct {
	Key      string
	Value    Value
	Source   Source
	CachedAt time.Time
	TTL      time.Duration
}

// Valid reports whether the entry is still fresh at now.
func (e CacheEntry) Valid(now time.Time) bool {
	return now.Sub(e.CachedAt) < e.TTL
}

// Cache memoizes resolved values per key. Expiry is judged against the
// injected clock; ttlcache evicts the backing items on its own schedule.
type Cache struct {
	items *ttlcache.Cache[string, CacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewCache returns a cache with the given default TTL.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		items: ttlcache.New(
			ttlcache.WithTTL[string, CacheEntry](ttl),
			ttlcache.WithDisableTouchOnHit[string, CacheEntry](),
		),
		ttl: ttl,
		now: now,
	}
}

// Get returns the entry for key if it is still valid.
func (c *Cache) Get(key string) (CacheEntry, bool) {
	item := c.items.Get(key)
	if item == nil {
		return CacheEntry{}, false
	}
	entry := item.Value()
	if !entry.Valid(c.now()) {
		c.items.Delete(key)
		return CacheEntry{}, false
	}
	return entry, true
}

// Set stores a value. A non-positive ttl uses the cache default.
func (c *Cache) Set(key string, value Value, source Source, ttl time.Duration) CacheEntry {
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry := CacheEntry{Key: key, Value: value, Source: source, CachedAt: c.now(), TTL: ttl}
	c.items.Set(key, entry, ttl)
	return entry
}

// Invalidate drops key.
func (c *Cache) Invalidate(key string) {
	c.items.Delete(key)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.items.DeleteAll()
}

// Len reports the number of stored entries, including ones not yet evicted.
func (c *Cache) Len() int {
	return c.items.Len()
}

// Start runs the background eviction loop until Stop is called.
func (c *Cache) Start() {
	c.items.Start()
}

// Stop ends the eviction loop.
func (c *Cache) Stop() {
	c.items.Stop()
}
