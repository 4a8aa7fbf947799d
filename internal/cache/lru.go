package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU caches record bodies by episode id, bounded by total bytes.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[uint64]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	id    uint64
	value []byte
}

// New returns a cache holding up to capacity bytes, or nil when capacity
// is not positive.
func New(capacity int64) *LRU {
	if capacity <= 0 {
		return nil
	}
	return &LRU{
		capacity:  capacity,
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached record for id. The slice must not be modified.
func (c *LRU) Get(id uint64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches b for id. Records larger than the capacity are not cached.
func (c *LRU) Set(id uint64, b []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(b))
	if n > c.capacity {
		return
	}
	if el, ok := c.items[id]; ok {
		e := el.Value.(*entry)
		c.size += n - int64(len(e.value))
		e.value = b
		c.evictList.MoveToFront(el)
	} else {
		c.items[id] = c.evictList.PushFront(&entry{id: id, value: b})
		c.size += n
	}
	for c.size > c.capacity {
		c.removeElement(c.evictList.Back())
	}
}

// Purge drops every entry.
func (c *LRU) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.items)
	c.evictList.Init()
	c.size = 0
}

// Stats returns the hit and miss counts.
func (c *LRU) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached bytes.
func (c *LRU) Size() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached records.
func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU) removeElement(el *list.Element) {
	c.evictList.Remove(el)
	e := el.Value.(*entry)
	delete(c.items, e.id)
	c.size -= int64(len(e.value))
}
