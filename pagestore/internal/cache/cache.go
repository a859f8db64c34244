// Package cache wraps groupcache's LRU for page store read caching. The
// teacher repo (pager/cache) hand rolls an evictList-backed LRU; this
// package reuses the library the teacher's own go.mod already names instead
// of reimplementing one.
package cache

import "github.com/golang/groupcache/lru"

// PageCache caches page payload bytes keyed by page index.
type PageCache struct {
	c *lru.Cache
}

// New returns a PageCache holding at most maxEntries pages. maxEntries == 0
// means unbounded, matching groupcache/lru's own MaxEntries convention; a
// negative maxEntries evicts every entry as soon as it is added.
func New(maxEntries int) *PageCache {
	return &PageCache{c: lru.New(maxEntries)}
}

func (p *PageCache) Get(idx uint64) ([]byte, bool) {
	v, ok := p.c.Get(idx)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (p *PageCache) Add(idx uint64, payload []byte) {
	p.c.Add(idx, payload)
}

func (p *PageCache) Remove(idx uint64) {
	p.c.Remove(idx)
}

// nopCache is used when caching is disabled (CacheSize <= 0 in Options).
type nopCache struct{}

// NewNop returns a PageCache-shaped cache that never retains anything.
func NewNop() *nopCache {
	return &nopCache{}
}

func (nopCache) Get(uint64) ([]byte, bool) { return nil, false }
func (nopCache) Add(uint64, []byte)        {}
func (nopCache) Remove(uint64)             {}
