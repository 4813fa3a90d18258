// Package cache wraps dgraph-io/ristretto as the in-process cache used
// by council verdicts and knowledge search results.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a bounded in-process byte cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value.
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.c.Get(key)
}

// Set stores a value with the given TTL.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
}

// Delete removes a value.
func (c *Cache) Delete(key string) {
	c.c.Del(key)
}

// Close releases cache resources.
func (c *Cache) Close() {
	c.c.Close()
}
