package guard

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 5 * time.Minute
)

// ResponseCache stores recent replies keyed per client and normalized query.
// Entries expire after the TTL; the total entry count is capped with LRU
// eviction.
type ResponseCache struct {
	cache *expirable.LRU[string, string]
}

func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ResponseCache{cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Get returns the cached reply for the client's normalized query, if any.
func (c *ResponseCache) Get(clientID, normalizedQuery string) (string, bool) {
	return c.cache.Get(cacheKey(clientID, normalizedQuery))
}

// Put stores a reply for the client's normalized query.
func (c *ResponseCache) Put(clientID, normalizedQuery, reply string) {
	c.cache.Add(cacheKey(clientID, normalizedQuery), reply)
}

// Keys are per client so one user's replies never leak into another's
// session.
func cacheKey(clientID, normalizedQuery string) string {
	return clientID + "\x00" + normalizedQuery
}
