package extract

import (
	"context"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of extraction results to keep.
const DefaultCacheSize = 512

type cachedResult struct {
	text string
	ok   bool
}

// CachedExtractor wraps an Extractor with an LRU keyed by path, size and
// modification time, so an unchanged file is never parsed twice.
type CachedExtractor struct {
	inner Extractor
	cache *lru.Cache[string, cachedResult]
}

// Verify interface implementation at compile time
var _ Extractor = (*CachedExtractor)(nil)

// NewCachedExtractor creates a cached extractor wrapping inner.
func NewCachedExtractor(inner Extractor, cacheSize int) *CachedExtractor {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, cachedResult](cacheSize)
	return &CachedExtractor{inner: inner, cache: cache}
}

// Extract returns the cached result when the file is unchanged.
func (c *CachedExtractor) Extract(ctx context.Context, path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	key := fmt.Sprintf("%s\x00%d\x00%d", path, info.Size(), info.ModTime().UnixNano())

	if r, ok := c.cache.Get(key); ok {
		return r.text, r.ok
	}

	text, ok := c.inner.Extract(ctx, path)
	if ctx.Err() == nil {
		c.cache.Add(key, cachedResult{text: text, ok: ok})
	}
	return text, ok
}

// Len returns the number of cached results.
func (c *CachedExtractor) Len() int {
	return c.cache.Len()
}
