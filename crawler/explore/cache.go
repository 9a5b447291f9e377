// Package explore parses the discovery categories of a book source and
// caches them per source.
package explore

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dotecxy/legado2-sub001/monitoring"
)

// Cache memoizes expensive per-source results. Concurrent callers asking for
// the same key wait for one computation and share its result; different keys
// never block each other. Failed computations are not cached.
type Cache struct {
	results *cache.Cache
	locks   sync.Map // key -> *sync.Mutex
}

// NewCache creates a cache; a zero ttl keeps entries for the process lifetime
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{results: cache.New(cache.NoExpiration, 0)}
	}
	return &Cache{results: cache.New(ttl, 2*ttl)}
}

// Key fingerprints the inputs of a cached computation
func Key(baseURL, rule string) string {
	sum := md5.Sum([]byte(baseURL + rule))
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached value for key or runs compute once
func (c *Cache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	if v, ok := c.results.Get(key); ok {
		monitoring.ExploreCacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}

	lock, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if v, ok := c.results.Get(key); ok {
		monitoring.ExploreCacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}
	monitoring.ExploreCacheTotal.WithLabelValues("miss").Inc()

	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.results.SetDefault(key, v)
	return v, nil
}

// Invalidate drops a cached value
func (c *Cache) Invalidate(key string) {
	c.results.Delete(key)
}
