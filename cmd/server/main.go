// Package main is the entry point for the paperchat API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/paperchat/paperchat/internal/api"
	"github.com/paperchat/paperchat/internal/api/handlers"
	"github.com/paperchat/paperchat/internal/chat"
	"github.com/paperchat/paperchat/internal/config"
	"github.com/paperchat/paperchat/internal/embedder"
	"github.com/paperchat/paperchat/internal/extractor"
	"github.com/paperchat/paperchat/internal/ingest"
	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/storage"
	"github.com/paperchat/paperchat/pkg/logger"
	"github.com/paperchat/paperchat/pkg/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	log.SetDefault()

	log.Info("starting paperchat",
		"version", "0.1.0",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
	)

	shutdownHandler := shutdown.New(log.Logger, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)

	// Database
	db, err := storage.NewPostgres(storage.PostgresConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	shutdownHandler.RegisterNamed("database", func(ctx context.Context) error {
		return db.Close()
	})

	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.EnsureSchema(schemaCtx, cfg.Embedding.Dimensions); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	log.Info("database ready", "host", cfg.Database.Host, "database", cfg.Database.Database)

	paperStore := storage.NewPaperStore(db, log.Logger)
	chatStore := storage.NewChatStore(db, log.Logger)

	// Redis is optional; without it the PDF cache degrades to always-miss.
	var redisClient storage.RedisClient
	if cfg.Redis.Host != "" {
		rc, err := storage.NewRedisClient(storage.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.WithError(err).Warn("redis unavailable, PDF cache disabled")
		} else {
			redisClient = rc
			shutdownHandler.RegisterNamed("redis", func(ctx context.Context) error {
				return rc.Close()
			})
			log.Info("connected to redis", "host", cfg.Redis.Host)
		}
	}
	pdfCache := storage.NewPDFCache(redisClient, log.Logger, storage.DefaultPDFCacheConfig())

	// Object storage is optional; without it PDFs live only in Postgres.
	var archive storage.ObjectStorage
	if cfg.Storage.Endpoint != "" {
		objStore, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			BucketName:      cfg.Storage.BucketName,
			UseSSL:          cfg.Storage.UseSSL,
		})
		if err != nil {
			log.WithError(err).Warn("object storage unavailable, PDF archive disabled")
		} else {
			archive = objStore
			log.Info("connected to object storage", "endpoint", cfg.Storage.Endpoint)
		}
	}

	pdfExtractor := extractor.New(extractor.Config{
		ServiceURL: cfg.Parser.ServiceURL,
		Timeout:    time.Duration(cfg.Parser.TimeoutSeconds) * time.Second,
	}, log)

	emb, err := embedder.New(embedder.Config{
		Endpoint:     cfg.Embedding.Endpoint,
		APIKey:       cfg.Embedding.APIKey,
		Model:        cfg.Embedding.Model,
		Task:         cfg.Embedding.Task,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		RateLimitRPS: cfg.Embedding.RateLimit,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	llmClient, err := llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	summarizer := llm.NewSummarizer(llmClient, cfg.Ingest.SummaryMaxChars, log.Logger)

	pipeline := ingest.NewPipeline(
		paperStore,
		chatStore,
		pdfExtractor,
		summarizer,
		emb,
		pdfCache,
		archive,
		ingest.NewArxivFetcher(nil),
		ingest.Config{
			ChunkSize:      cfg.Ingest.ChunkSize,
			ChunkOverlap:   cfg.Ingest.ChunkOverlap,
			ArxivChunkSize: cfg.Ingest.ArxivChunkSize,
			ArxivOverlap:   cfg.Ingest.ArxivOverlap,
			EmbedBatchSize: cfg.Embedding.BatchSize,
		},
		log,
	)

	sessions := chat.NewSessionManager(chatStore, log.Logger)
	responder, err := chat.NewResponder(paperStore, chatStore, sessions, emb, llmClient, chat.Config{
		ContextTokenBudget: cfg.Chat.ContextTokenBudget,
		SimilarityFloor:    cfg.Chat.SimilarityFloor,
		SimilarityTopK:     cfg.Chat.SimilarityTopK,
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	health := map[string]handlers.HealthChecker{
		"database": db,
	}
	if archive != nil {
		health["object_storage"] = archive
	}

	routerConfig := api.DefaultRouterConfig()
	routerConfig.MaxUploadBytes = cfg.Ingest.MaxUploadBytes

	apiDeps := api.Dependencies{
		Logger:   log.Logger,
		Ingestor: pipeline,
		Papers:   paperStore,
		Cache:    pdfCache,
		Sessions: sessions,
		Chat:     chatServiceAdapter{responder},
		Health:   health,
	}
	if archive != nil {
		apiDeps.Archive = archive
	}

	router := api.NewRouter(apiDeps, routerConfig)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Server.Port
	server := api.NewServer(router, serverConfig, log.Logger)

	shutdownHandler.RegisterNamed("http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
			// Trigger the same teardown path as an external signal.
			if p, err := os.FindProcess(os.Getpid()); err == nil {
				_ = p.Signal(syscall.SIGTERM)
			}
		}
	}()

	shutdownHandler.Wait()
	return nil
}

// chatServiceAdapter narrows *chat.Responder to the handler-facing interface.
type chatServiceAdapter struct {
	responder *chat.Responder
}

func (a chatServiceAdapter) Respond(ctx context.Context, chatID uuid.UUID, query string) (handlers.Reply, error) {
	return a.responder.Respond(ctx, chatID, query)
}
