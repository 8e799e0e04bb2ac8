package loader

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	page     Page
	storedAt time.Time
}

// pageCache is a bounded LRU of first pages. Insertion order of the linked hash map doubles as recency order:
// a hit is removed and re-inserted at the back, and eviction takes from the front.
type pageCache struct {
	mu       sync.Mutex
	entries  *linkedhashmap.Map
	capacity int
}

func newPageCache(capacity int) *pageCache {
	if capacity < 1 {
		capacity = 1
	}
	return &pageCache{entries: linkedhashmap.New(), capacity: capacity}
}

// get returns the entry for key if it is younger than maxAge
func (c *pageCache) get(key string, maxAge time.Duration, now time.Time) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, found := c.entries.Get(key)
	if !found {
		return cacheEntry{}, false
	}
	entry := v.(cacheEntry)
	if now.Sub(entry.storedAt) > maxAge {
		return cacheEntry{}, false
	}
	c.entries.Remove(key)
	c.entries.Put(key, entry)
	return entry, true
}

func (c *pageCache) put(key string, page Page, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
	c.entries.Put(key, cacheEntry{page: page, storedAt: now})
	for c.entries.Size() > c.capacity {
		it := c.entries.Iterator()
		if !it.First() {
			break
		}
		c.entries.Remove(it.Key())
	}
}

// removePrefix drops every entry whose key starts with prefix
func (c *pageCache) removePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k.(string), prefix) {
			c.entries.Remove(k)
			removed++
		}
	}
	return removed
}

func (c *pageCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
}

func (c *pageCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Size()
}
