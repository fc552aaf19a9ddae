// Package embedder provides text-to-vector conversion via a remote embedding
// service.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/paperchat/paperchat/pkg/logger"
)

// ErrMissingAPIKey indicates the embedding service credential is absent.
// Surfaced at construction time; there is no retry for missing configuration.
var ErrMissingAPIKey = errors.New("embedding API key is required")

// ServiceError indicates a non-2xx or malformed response from the embedding
// provider.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding service error: %d %s", e.StatusCode, e.Message)
	}
	return "embedding service error: " + e.Message
}

// Embedder defines the interface for embedding generation.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving input
	// order and cardinality. Batch sizing is the caller's responsibility.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int
}

// Config holds configuration for the embedder.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	Task           string
	Dimensions     int
	MaxRetries     int
	RetryDelay     time.Duration
	RateLimitRPS   int
	RequestTimeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		Endpoint:       "https://api.jina.ai/v1/embeddings",
		APIKey:         apiKey,
		Model:          "jina-embeddings-v3",
		Task:           "retrieval.passage",
		Dimensions:     1024,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		RateLimitRPS:   10,
		RequestTimeout: 60 * time.Second,
	}
}

// HTTPEmbedder implements Embedder against an HTTP embedding service.
type HTTPEmbedder struct {
	config      Config
	client      *http.Client
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// New creates a new HTTPEmbedder.
func New(cfg Config, log *logger.Logger) (*HTTPEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}

	return &HTTPEmbedder{
		config:      cfg,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitRPS),
		log:         log.WithComponent("embedder"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ServiceError{Message: "no embedding returned"}
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for the given texts in one request.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()

	var lastErr error
	delay := e.config.RetryDelay

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.log.Debug("retrying embedding request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := e.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		embeddings, err := e.doEmbed(ctx, texts)
		if err == nil {
			e.log.Debug("embedding batch complete",
				"count", len(texts),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return embeddings, nil
		}

		lastErr = err

		// Client-side errors won't heal on retry.
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode >= 400 && svcErr.StatusCode < 500 {
			return nil, err
		}
		e.log.WithError(err).Warn("embedding request failed", "attempt", attempt)
	}

	return nil, fmt.Errorf("all retries failed: %w", lastErr)
}

// embedRequest is the embedding service wire request.
type embedRequest struct {
	Model      string   `json:"model"`
	Task       string   `json:"task,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
	Input      []string `json:"input"`
}

// embedResponse is the embedding service wire response; data entries arrive in
// input order.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// doEmbed performs a single embedding API call.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Model:      e.config.Model,
		Task:       e.config.Task,
		Dimensions: e.config.Dimensions,
		Input:      texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ServiceError{Message: "malformed response: " + err.Error()}
	}

	if len(parsed.Data) != len(texts) {
		return nil, &ServiceError{
			Message: fmt.Sprintf("got %d embeddings for %d texts", len(parsed.Data), len(texts)),
		}
	}

	embeddings := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// Dimension returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimension() int {
	return e.config.Dimensions
}
