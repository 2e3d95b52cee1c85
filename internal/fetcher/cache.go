package fetcher

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/model"
)

// CachingFetcher keeps recently fetched pages in memory for a fixed TTL.
// Failed fetches are never cached. It is safe for concurrent use.
type CachingFetcher struct {
	next       model.PageFetcher
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[int]cacheEntry
}

type cacheEntry struct {
	page      model.Page
	expiresAt time.Time
}

// NewCachingFetcher wraps next with a page cache. A ttl of zero or less
// disables caching. maxEntries defaults to 256.
func NewCachingFetcher(next model.PageFetcher, ttl time.Duration, maxEntries int, metrics *observability.Metrics, logger *zap.Logger) *CachingFetcher {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingFetcher{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
		logger:     logger,
		cache:      make(map[int]cacheEntry),
	}
}

// FetchPage returns the cached page when fresh, otherwise fetches and stores it.
// A context marked with model.WithFresh always fetches, and the result
// replaces any stored copy.
func (c *CachingFetcher) FetchPage(ctx context.Context, page int) (model.Page, error) {
	if c.ttl <= 0 {
		return c.next.FetchPage(ctx, page)
	}

	var (
		p   model.Page
		hit bool
	)
	if !model.IsFresh(ctx) {
		p, hit = c.getFromCache(page)
	}
	observability.MarkCacheHit(ctx, hit)
	if hit {
		c.metrics.RecordPageCacheHit()
		c.logger.Debug("fetcher: page cache hit", zap.Int("page", page))
		return p, nil
	}
	c.metrics.RecordPageCacheMiss()

	p, err := c.next.FetchPage(ctx, page)
	if err != nil {
		return model.Page{}, err
	}
	c.putInCache(page, p)
	return clonePage(p), nil
}

// Invalidate drops every cached page.
func (c *CachingFetcher) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
}

// Len returns the number of cached pages, expired or not.
func (c *CachingFetcher) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// getFromCache returns a copy of the cached page if it exists and hasn't expired.
func (c *CachingFetcher) getFromCache(page int) (model.Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[page]
	if !exists || time.Now().After(entry.expiresAt) {
		return model.Page{}, false
	}
	return clonePage(entry.page), true
}

// putInCache stores a page with the configured TTL.
func (c *CachingFetcher) putInCache(page int, p model.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[page]; !exists && len(c.cache) >= c.maxEntries {
		c.evictExpired()
		if len(c.cache) >= c.maxEntries {
			c.evictOldest()
		}
	}

	c.cache[page] = cacheEntry{
		page:      clonePage(p),
		expiresAt: time.Now().Add(c.ttl),
	}
}

// evictExpired removes expired entries. Must be called with mu held.
func (c *CachingFetcher) evictExpired() {
	now := time.Now()
	for k, v := range c.cache {
		if now.After(v.expiresAt) {
			delete(c.cache, k)
		}
	}
}

// evictOldest removes the entry closest to expiry. Must be called with mu held.
func (c *CachingFetcher) evictOldest() {
	oldest := -1
	var oldestAt time.Time
	for k, v := range c.cache {
		if oldest == -1 || v.expiresAt.Before(oldestAt) {
			oldest, oldestAt = k, v.expiresAt
		}
	}
	if oldest != -1 {
		delete(c.cache, oldest)
	}
}

// clonePage copies the item slice so callers never share a backing array.
func clonePage(p model.Page) model.Page {
	return model.Page{Items: slices.Clone(p.Items), HasMore: p.HasMore}
}
