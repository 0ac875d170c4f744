package morph

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of distinct tokens kept by Cached.
const DefaultCacheSize = 50000

type cachedResult struct {
	analysis Analysis
	err      error
}

// Cached wraps an Analyzer with an LRU of recent analyses. Page re-scans at
// search time hit the same vocabulary the indexer already analyzed.
type Cached struct {
	inner Analyzer
	cache *lru.Cache[string, cachedResult]
}

// NewCached creates a caching analyzer; size <= 0 uses DefaultCacheSize.
func NewCached(inner Analyzer, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, cachedResult](size)
	return &Cached{inner: inner, cache: cache}
}

// Analyze implements Analyzer. Failures are cached too.
func (c *Cached) Analyze(token string) (Analysis, error) {
	if r, ok := c.cache.Get(token); ok {
		return r.analysis, r.err
	}
	a, err := c.inner.Analyze(token)
	c.cache.Add(token, cachedResult{analysis: a, err: err})
	return a, err
}

// Len returns the number of cached tokens.
func (c *Cached) Len() int {
	return c.cache.Len()
}
