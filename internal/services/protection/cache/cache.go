// Package cache holds loaded protections indexed by id and by location key.
//
// The cache has no internal locking and no eviction. It is owned by the tick
// goroutine; every other goroutine must hand work to that goroutine.
package cache

import "github.com/louisbranch/wardstone/internal/services/protection/domain"

// Cache indexes shared protection instances by id and location key. Both
// indices always point at the same instance.
type Cache struct {
	byID      map[int64]*domain.Protection
	byKey     map[string]*domain.Protection
	keys      map[int64]string
	liveCount int64
}

// New returns an empty cache sized for capacity entries. The live count
// starts unknown, so the cache is not complete until SetLiveCount is called.
func New(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache{
		byID:      make(map[int64]*domain.Protection, capacity),
		byKey:     make(map[string]*domain.Protection, capacity),
		keys:      make(map[int64]string, capacity),
		liveCount: -1,
	}
}

// Get returns the protection with id.
func (c *Cache) Get(id int64) (*domain.Protection, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// GetAt returns the protection at key (`world:x:y:z`).
func (c *Cache) GetAt(key string) (*domain.Protection, bool) {
	p, ok := c.byKey[key]
	return p, ok
}

// Put indexes p, dropping any stale entry that shared its id or its key.
// Callers may move a cached instance in place before re-putting it; the key
// it was stored under is tracked separately so the old location is released.
func (c *Cache) Put(p *domain.Protection) {
	if p == nil {
		return
	}
	key := p.Location.Key()
	if stored, ok := c.keys[p.ID]; ok && stored != key {
		c.dropKey(stored, p.ID)
	}
	if old, ok := c.byKey[key]; ok && old.ID != p.ID {
		c.InvalidateID(old.ID)
	}
	c.byID[p.ID] = p
	c.byKey[key] = p
	c.keys[p.ID] = key
}

// Invalidate drops p from both indices, including the key it was stored
// under if p has since moved.
func (c *Cache) Invalidate(p *domain.Protection) {
	if p == nil {
		return
	}
	c.InvalidateID(p.ID)
	c.dropKey(p.Location.Key(), p.ID)
}

// InvalidateID drops the protection with id.
func (c *Cache) InvalidateID(id int64) {
	if stored, ok := c.keys[id]; ok {
		c.dropKey(stored, id)
		delete(c.keys, id)
	}
	delete(c.byID, id)
}

func (c *Cache) dropKey(key string, id int64) {
	if current, ok := c.byKey[key]; ok && current.ID == id {
		delete(c.byKey, key)
	}
}

// Clear drops every entry. The live count is kept.
func (c *Cache) Clear() {
	clear(c.byID)
	clear(c.byKey)
	clear(c.keys)
}

// Size returns the number of cached protections.
func (c *Cache) Size() int {
	return len(c.byID)
}

// SetLiveCount records the authoritative number of stored protections.
func (c *Cache) SetLiveCount(n int64) {
	if n < 0 {
		n = 0
	}
	c.liveCount = n
}

// AdjustLiveCount adds delta to a known live count.
func (c *Cache) AdjustLiveCount(delta int64) {
	if c.liveCount < 0 {
		return
	}
	c.liveCount += delta
	if c.liveCount < 0 {
		c.liveCount = 0
	}
}

// LiveCount returns the recorded live count, or -1 when unknown.
func (c *Cache) LiveCount() int64 {
	return c.liveCount
}

// Complete reports whether every stored protection is cached, in which case
// a miss is authoritative.
func (c *Cache) Complete() bool {
	return c.liveCount >= 0 && int64(len(c.byID)) >= c.liveCount
}

// Each calls fn for every cached protection until fn returns false. Order is
// unspecified.
func (c *Cache) Each(fn func(*domain.Protection) bool) {
	for _, p := range c.byID {
		if !fn(p) {
			return
		}
	}
}
