package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is the L1 cache. It is bounded by both entry count and total
// bytes; the least recently used entries go first.
type MemoryCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, []byte]
	capacity int64
	size     int64
	stats    Stats
}

// NewMemoryCache creates a memory cache holding at most entries items and
// capacity bytes.
func NewMemoryCache(entries int, capacity int64) (*MemoryCache, error) {
	c := &MemoryCache{
		capacity: capacity,
		stats:    Stats{Capacity: capacity},
	}
	l, err := lru.NewWithEvict(entries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// onEvict runs with c.mu held: every lru mutation happens under it.
func (c *MemoryCache) onEvict(_ string, value []byte) {
	c.size -= int64(len(value))
	c.stats.Evictions++
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return v, true
}

// Put stores a value, evicting old entries to stay within capacity.
func (c *MemoryCache) Put(key string, value []byte) error {
	n := int64(len(value))
	if n > c.capacity {
		return ErrItemTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Remove(key) {
		// Replacing is not an eviction.
		c.stats.Evictions--
	}
	for c.size+n > c.capacity && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
	c.lru.Add(key, value)
	c.size += n
	return nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Remove(key) {
		c.stats.Evictions--
	}
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	evictions := c.stats.Evictions
	c.lru.Purge()
	c.stats.Evictions = evictions
	c.size = 0
}

// Contains checks if a key exists without updating recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Size returns the current size in bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.size
	s.ItemCount = int64(c.lru.Len())
	s.computeHitRate()
	return s
}
