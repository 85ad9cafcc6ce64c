// Package cache provides an in-memory LRU cache for extraction results,
// keyed by normalized URL.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

type entry struct {
	key     string
	value   analysis.ExtractionResult
	savedAt time.Time
}

// LRU is a fixed-capacity least-recently-used cache. A zero TTL disables
// expiry. All methods are safe for concurrent use.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// New creates an LRU with the given capacity and TTL. Capacity must be
// positive; non-positive values fall back to 100.
func New(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 100
	}
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached value for key and marks it most recently used.
// Expired entries are evicted on access.
func (c *LRU) Get(key string) (analysis.ExtractionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return analysis.ExtractionResult{}, false
	}
	ent := elem.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(ent.savedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.items, key)
		return analysis.ExtractionResult{}, false
	}
	c.order.MoveToFront(elem)
	return ent.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU) Put(key string, value analysis.ExtractionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.savedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
	c.items[key] = c.order.PushFront(&entry{
		key:     key,
		value:   value,
		savedAt: c.now(),
	})
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
