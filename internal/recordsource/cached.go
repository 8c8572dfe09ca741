package recordsource

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"pedigreecore/internal/pedigree"
)

type cachedRecord struct {
	rec pedigree.Record
	ok  bool
}

// Cached memoizes lookups in a bounded LRU, including negative results, and
// collapses concurrent lookups of the same id into one call to the inner
// Fetcher. Source errors are never cached.
type Cached struct {
	inner pedigree.Fetcher
	cache *lru.Cache[string, cachedRecord]
	group singleflight.Group
}

// NewCached wraps inner with an LRU holding up to size records.
func NewCached(inner pedigree.Fetcher, size int) (*Cached, error) {
	cache, err := lru.New[string, cachedRecord](size)
	if err != nil {
		return nil, fmt.Errorf("recordsource: lru: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Lookup implements pedigree.Fetcher.
func (c *Cached) Lookup(ctx context.Context, id string) (pedigree.Record, bool, error) {
	if hit, ok := c.cache.Get(id); ok {
		return hit.rec, hit.ok, nil
	}
	val, err, _ := c.group.Do(id, func() (any, error) {
		if hit, ok := c.cache.Get(id); ok {
			return hit, nil
		}
		rec, found, err := c.inner.Lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		entry := cachedRecord{rec: rec, ok: found}
		c.cache.Add(id, entry)
		return entry, nil
	})
	if err != nil {
		return pedigree.Record{}, false, err
	}
	entry, ok := val.(cachedRecord)
	if !ok {
		return pedigree.Record{}, false, fmt.Errorf("recordsource: unexpected singleflight result type %T", val)
	}
	return entry.rec, entry.ok, nil
}

// Forget drops id from the cache so the next lookup reaches the source.
func (c *Cached) Forget(id string) {
	c.cache.Remove(id)
}

// Purge empties the cache.
func (c *Cached) Purge() {
	c.cache.Purge()
}

// Len reports the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.Len()
}
