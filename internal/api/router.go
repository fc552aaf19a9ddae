// Package api provides the HTTP server, router and middleware wiring.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/paperchat/paperchat/internal/api/handlers"
	"github.com/paperchat/paperchat/internal/api/middleware"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int

	RequestTimeout time.Duration

	// MaxUploadBytes caps multipart PDF uploads.
	MaxUploadBytes int64

	EnableRateLimiting bool
	RateLimitConfig    middleware.RateLimitConfig
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID"},
		AllowCredentials:   false,
		MaxAge:             300,
		RequestTimeout:     120 * time.Second,
		MaxUploadBytes:     10 << 20,
		EnableRateLimiting: true,
		RateLimitConfig:    middleware.DefaultRateLimitConfig(),
	}
}

// Dependencies holds everything the API handlers need.
type Dependencies struct {
	Logger   *slog.Logger
	Ingestor handlers.Ingestor
	Papers   handlers.PaperReader
	Cache    handlers.BinaryCache
	Archive  handlers.ArchiveReader
	Sessions handlers.SessionService
	Chat     handlers.ChatService

	// Readiness probes by component name. Nil values report "not configured".
	Health map[string]handlers.HealthChecker
}

// NewRouter creates the Chi router with all middleware and routes.
func NewRouter(deps Dependencies, config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(chimiddleware.Timeout(config.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	}))

	var rateLimiter *middleware.RateLimiter
	if config.EnableRateLimiting {
		rateLimiter = middleware.NewRateLimiter(config.RateLimitConfig, logger)
	}

	r.Get("/health", handlers.HealthCheck())
	r.Get("/ready", handlers.ReadyCheck(deps.Health))

	r.Route("/api/v1/papers", func(r chi.Router) {
		// Ingestion and generation are the expensive endpoints.
		r.Group(func(r chi.Router) {
			if rateLimiter != nil {
				r.Use(rateLimiter.Middleware())
			}
			r.Post("/upload", handlers.HandleUpload(deps.Ingestor, config.MaxUploadBytes, logger))
			r.Post("/load", handlers.HandleLoad(deps.Ingestor, logger))
			r.Post("/{id}/chat", handlers.HandleChat(deps.Sessions, deps.Chat, logger))
		})

		r.Get("/{id}", handlers.GetPaper(deps.Papers, logger))
		r.Get("/{id}/file", handlers.GetPaperFile(deps.Papers, deps.Cache, deps.Archive, logger))
		r.Get("/{id}/history", handlers.GetHistory(deps.Sessions, logger))
	})

	return r
}

// Server wraps the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:        8080,
		ReadTimeout: 30 * time.Second,
		// Write timeout must cover a full streamed generation.
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new HTTP server.
func NewServer(handler http.Handler, config ServerConfig, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         formatAddr(config.Host, config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func formatAddr(host string, port int) string {
	if host == "" {
		return fmt.Sprintf(":%d", port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}
