package pricing

import (
	"sync"
	"time"
)

// Cache is a TTL cache keyed by string. Expired entries are dropped on read.
type Cache[V any] struct {
	data  map[string]cacheEntry[V]
	ttl   time.Duration
	now   func() time.Time
	mutex sync.RWMutex
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		data: make(map[string]cacheEntry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns the cached value and whether it was present and fresh
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.mutex.Lock()
		if cur, ok := c.data[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.data, key)
		}
		c.mutex.Unlock()
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]cacheEntry[V])
}
