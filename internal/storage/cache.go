package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// PDFCacheConfig holds configuration for the PDF cache.
type PDFCacheConfig struct {
	Prefix string
	TTL    time.Duration
}

// DefaultPDFCacheConfig returns a default cache configuration.
func DefaultPDFCacheConfig() PDFCacheConfig {
	return PDFCacheConfig{
		Prefix: "pdf",
		TTL:    24 * time.Hour,
	}
}

// PDFCacheMetrics tracks cache hit/miss statistics.
type PDFCacheMetrics struct {
	Hits   uint64
	Misses uint64
	Errors uint64
}

// PDFCache caches base64-encoded PDF blobs in Redis in front of the paper
// store. It is purely an accelerator: every operation degrades to a miss or a
// no-op when Redis is unreachable, and the store remains the source of truth.
type PDFCache struct {
	client  RedisClient
	config  PDFCacheConfig
	logger  *slog.Logger
	metrics PDFCacheMetrics
}

// NewPDFCache creates a new PDFCache. A nil client yields a cache that always
// misses, so callers never need to branch on cache availability.
func NewPDFCache(client RedisClient, logger *slog.Logger, config PDFCacheConfig) *PDFCache {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Prefix == "" {
		config.Prefix = "pdf"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &PDFCache{
		client: client,
		config: config,
		logger: logger.With("component", "pdf_cache"),
	}
}

// Get returns the cached base64 blob for a paper id and whether it was found.
func (c *PDFCache) Get(ctx context.Context, paperID string) (string, bool) {
	if c.client == nil {
		return "", false
	}

	val, err := c.client.Get(ctx, c.key(paperID))
	if errors.Is(err, ErrCacheMiss) {
		atomic.AddUint64(&c.metrics.Misses, 1)
		return "", false
	}
	if err != nil {
		atomic.AddUint64(&c.metrics.Errors, 1)
		c.logger.Warn("cache get failed, treating as miss", "paper_id", paperID, "error", err)
		return "", false
	}

	atomic.AddUint64(&c.metrics.Hits, 1)
	return val, true
}

// Put stores a base64 blob for a paper id. Failures are logged and swallowed.
func (c *PDFCache) Put(ctx context.Context, paperID, base64Data string) {
	if c.client == nil {
		return
	}

	if err := c.client.Set(ctx, c.key(paperID), base64Data, c.config.TTL); err != nil {
		atomic.AddUint64(&c.metrics.Errors, 1)
		c.logger.Warn("cache put failed, continuing", "paper_id", paperID, "error", err)
	}
}

// Metrics returns a snapshot of the cache counters.
func (c *PDFCache) Metrics() PDFCacheMetrics {
	return PDFCacheMetrics{
		Hits:   atomic.LoadUint64(&c.metrics.Hits),
		Misses: atomic.LoadUint64(&c.metrics.Misses),
		Errors: atomic.LoadUint64(&c.metrics.Errors),
	}
}

func (c *PDFCache) key(paperID string) string {
	return c.config.Prefix + ":" + paperID
}
