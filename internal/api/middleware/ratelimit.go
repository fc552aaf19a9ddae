package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-client rate limit parameters.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	// ClientTTL is how long an idle client's limiter is retained.
	ClientTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		Burst:             5,
		ClientTTL:         10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token-bucket limit per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	config  RateLimitConfig
	logger  *slog.Logger
}

// NewRateLimiter creates a rate limiter and starts its idle-client janitor.
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		config:  config,
		logger:  logger,
	}
	go rl.janitor()
	return rl
}

// Middleware returns the HTTP middleware enforcing the limit.
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !rl.allow(key) {
				rl.logger.Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(60/max(rl.config.RequestsPerMinute, 1)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.config.RequestsPerMinute)/60.0), rl.config.Burst),
		}
		rl.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// janitor drops limiters for clients idle longer than ClientTTL.
func (rl *RateLimiter) janitor() {
	ttl := rl.config.ClientTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-ttl)
		rl.mu.Lock()
		for key, cl := range rl.clients {
			if cl.lastSeen.Before(cutoff) {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
