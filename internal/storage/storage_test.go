package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestEmbeddingToString(t *testing.T) {
	assert.Equal(t, "[]", embeddingToString(nil))
	assert.Equal(t, "[]", embeddingToString([]float32{}))
	assert.Equal(t, "[1,0.5,-2]", embeddingToString([]float32{1, 0.5, -2}))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain error")))
	assert.False(t, isUniqueViolation(nil))
}

// fakeRedis implements RedisClient in memory.
type fakeRedis struct {
	values map[string]string
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value.(string)
	return nil
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }
func (f *fakeRedis) Close() error                   { return nil }

func TestPDFCacheRoundTrip(t *testing.T) {
	client := newFakeRedis()
	cache := NewPDFCache(client, nil, DefaultPDFCacheConfig())
	ctx := context.Background()

	_, found := cache.Get(ctx, "p1")
	assert.False(t, found)

	cache.Put(ctx, "p1", "blob-data")

	got, found := cache.Get(ctx, "p1")
	assert.True(t, found)
	assert.Equal(t, "blob-data", got)

	// Keys are namespaced.
	assert.Contains(t, client.values, "pdf:p1")

	m := cache.Metrics()
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(1), m.Misses)
}

func TestPDFCacheNilClientAlwaysMisses(t *testing.T) {
	cache := NewPDFCache(nil, nil, DefaultPDFCacheConfig())
	ctx := context.Background()

	cache.Put(ctx, "p1", "blob")
	_, found := cache.Get(ctx, "p1")
	assert.False(t, found)
}

func TestPDFCacheWrappedMissCountsAsMiss(t *testing.T) {
	// A client may wrap the miss sentinel; the cache must still classify it as
	// a miss, not an error.
	client := newFakeRedis()
	client.getErr = fmt.Errorf("lookup pdf:p1: %w", ErrCacheMiss)
	cache := NewPDFCache(client, nil, DefaultPDFCacheConfig())

	_, found := cache.Get(context.Background(), "p1")
	assert.False(t, found)

	m := cache.Metrics()
	assert.Equal(t, uint64(1), m.Misses)
	assert.Equal(t, uint64(0), m.Errors)
}

func TestPDFCacheSwallowsErrors(t *testing.T) {
	client := newFakeRedis()
	client.getErr = errors.New("connection refused")
	client.setErr = errors.New("connection refused")
	cache := NewPDFCache(client, nil, DefaultPDFCacheConfig())
	ctx := context.Background()

	cache.Put(ctx, "p1", "blob")
	_, found := cache.Get(ctx, "p1")
	assert.False(t, found)

	m := cache.Metrics()
	assert.Equal(t, uint64(2), m.Errors)
}
