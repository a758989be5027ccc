package filter

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultCacheExpiration is how long an unused compiled filter is kept.
	DefaultCacheExpiration = 10 * time.Minute
	// DefaultCacheCleanup is the interval between sweeps of expired entries.
	DefaultCacheCleanup = 30 * time.Minute
)

// Cache memoizes compiled filters by their source text. Only successful
// compilations are cached.
type Cache struct {
	cache *gocache.Cache
}

// NewCache creates a cache whose entries expire after expiration of
// inactivity. Zero values fall back to the package defaults.
func NewCache(expiration, cleanup time.Duration) *Cache {
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}
	if cleanup <= 0 {
		cleanup = DefaultCacheCleanup
	}
	return &Cache{cache: gocache.New(expiration, cleanup)}
}

// Compile returns the cached filter for text, compiling and storing it on a
// miss. A nil Cache compiles without caching.
func (c *Cache) Compile(text string) (*Filter, error) {
	if c == nil {
		return Compile(text)
	}
	if v, found := c.cache.Get(text); found {
		if f, ok := v.(*Filter); ok {
			return f, nil
		}
	}
	f, err := Compile(text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(text, f)
	return f, nil
}

// Len returns the number of cached filters, including expired entries not
// yet cleaned up.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.ItemCount()
}

// Flush drops every cached filter.
func (c *Cache) Flush() {
	if c != nil {
		c.cache.Flush()
	}
}
