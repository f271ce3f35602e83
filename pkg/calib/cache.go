package calib

import (
	"sync"
)

// TableSource loads the calibration tables needed by flags for one orbit.
type TableSource interface {
	Path() string
	Load(orbit int, flags Flags) (*Tables, error)
}

type cacheKey struct {
	path  string
	orbit int
	flags Flags
}

type cacheEntry struct {
	once sync.Once
	tabs *Tables
	err  error
}

// Cache memoizes table loads by (store path, orbit). It is safe for
// concurrent use; every key is loaded at most once.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*cacheEntry)}
}

// Get returns the tables of src for orbit, loading them on first use.
// Load errors are cached as well.
func (c *Cache) Get(src TableSource, orbit int, flags Flags) (*Tables, error) {
	key := cacheKey{src.Path(), orbit, flags}
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.tabs, e.err = src.Load(orbit, flags)
		if e.err == nil && e.tabs != nil {
			e.err = e.tabs.Prepare()
		}
	})
	return e.tabs, e.err
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
