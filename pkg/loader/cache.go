package loader

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes loader results per file. Concurrent loads of the same key
// share one call. Failed loads are not cached.
type Cache struct {
	mu    sync.RWMutex
	items map[string][]byte
	group singleflight.Group
}

func NewCache() *Cache {
	return &Cache{items: make(map[string][]byte)}
}

func (c *Cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Load returns the cached bytes for key or calls fn to produce them.
func (c *Cache) Load(key string, fn func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Forget drops key so the next Load reads the source again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	c.group.Forget(key)
}
