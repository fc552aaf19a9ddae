package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:     endpoint,
		APIKey:       "test-key",
		Model:        "test-model",
		Task:         "retrieval.passage",
		Dimensions:   4,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
		RateLimitRPS: 1000,
	}
}

func embedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.APIKey = ""
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "retrieval.passage", req.Task)
		assert.Equal(t, 4, req.Dimensions)

		var resp embedResponse
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: []float32{float32(i), 0, 0, 0}})
		}
		json.NewEncoder(w).Encode(resp)
	})

	e, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	embeddings, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	for i, emb := range embeddings {
		assert.Equal(t, float32(i), emb[0], "embedding %d out of order", i)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e, err := New(testConfig("http://localhost:1"), nil)
	require.NoError(t, err)

	embeddings, err := e.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestEmbedBatchCardinalityMismatch(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[1,2,3,4]}]}`)
	})

	e, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	var svcErr *ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestEmbedBatchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	e, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusUnauthorized, svcErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[{"embedding":[1,2,3,4]}]}`)
	})

	e, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	embeddings, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedSingle(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[0.5,0.5,0.5,0.5]}]}`)
	})

	e, err := New(testConfig(srv.URL), nil)
	require.NoError(t, err)

	emb, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, emb)
}

func TestEmbedBatchContextCanceled(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	cfg := testConfig(srv.URL)
	cfg.RetryDelay = time.Minute
	e, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = e.EmbedBatch(ctx, []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
