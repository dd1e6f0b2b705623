package device

import (
	"sync"
	"time"
)

// Cache is a bounded TTL cache of registry entries keyed by device UUID.
//
// Entries expire TTL after they were cached, regardless of access; a stale
// credential is a bounded liability, so freshness is measured from insertion
// rather than last use. When the cache is full, the entry cached longest ago
// is evicted to make room.
//
// All methods are safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

type cacheEntry struct {
	device   *Device
	cachedAt time.Time
}

// NewCache creates a cache holding at most maxEntries devices, each valid
// for ttl after insertion. maxEntries must be positive.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached device for a UUID, or nil if absent or expired.
// Expired entries are removed on access. The returned device is a deep
// copy; callers can safely modify it.
func (c *Cache) Get(uuid string) *Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[uuid]
	if !ok {
		c.misses++
		return nil
	}

	if c.now().Sub(entry.cachedAt) > c.ttl {
		delete(c.entries, uuid)
		c.misses++
		return nil
	}

	c.hits++
	return entry.device.DeepCopy()
}

// Put stores a device, evicting the oldest entry if the cache is full.
// The device is deep-copied on the way in.
func (c *Cache) Put(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[d.UUID]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[d.UUID] = &cacheEntry{
		device:   d.DeepCopy(),
		cachedAt: c.now(),
	}
}

// Invalidate removes a single device from the cache.
// Removing an absent entry is a no-op.
func (c *Cache) Invalidate(uuid string) {
	c.mu.Lock()
	delete(c.entries, uuid)
	c.mu.Unlock()
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of cached entries, including any not yet expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheStats holds cache counters for monitoring.
type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns current cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// evictOldestLocked removes the entry with the oldest cachedAt.
// Caller must hold the write lock.
func (c *Cache) evictOldestLocked() {
	var oldestUUID string
	var oldestAt time.Time
	for uuid, entry := range c.entries {
		if oldestUUID == "" || entry.cachedAt.Before(oldestAt) {
			oldestUUID = uuid
			oldestAt = entry.cachedAt
		}
	}
	if oldestUUID != "" {
		delete(c.entries, oldestUUID)
		c.evictions++
	}
}
