package store

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheEntries bounds the read cache. The key space is tiny (one entry per
// aggregate document), so this is generous.
const cacheEntries = 64

// Cached wraps a Store with a short-TTL read cache. Writes evict the key
// immediately, so a Get following a Set always observes the write; entries
// older than the TTL are evicted by the cache itself, bounding memory.
type Cached struct {
	inner Store
	cache *lru.LRU[string, *Document]
}

// NewCached wraps inner with a TTL read cache.
func NewCached(inner Store, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: lru.NewLRU[string, *Document](cacheEntries, nil, ttl),
	}
}

// Raw returns the wrapped store, for callers that must bypass the cache
// (the reconciliation engine compares live values).
func (c *Cached) Raw() Store {
	return c.inner
}

// Get serves from cache within the TTL window, falling through to the
// inner store on miss. Missing keys are not negatively cached.
func (c *Cached) Get(ctx context.Context, key string) (*Document, error) {
	if doc, ok := c.cache.Get(key); ok {
		return doc, nil
	}
	doc, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, doc)
	return doc, nil
}

// Set writes through to the inner store and evicts the cached entry.
func (c *Cached) Set(ctx context.Context, key string, data json.RawMessage) error {
	if err := c.inner.Set(ctx, key, data); err != nil {
		return err
	}
	c.cache.Remove(key)
	return nil
}

// Invalidate evicts a key written behind the cache's back, e.g. by the
// reconciliation engine or the mirror listener.
func (c *Cached) Invalidate(key string) {
	c.cache.Remove(key)
}
