// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Parser    ParserConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Ingest    IngestConfig
	Chat      ChatConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Environment     string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// ParserConfig holds remote PDF parser configuration.
// An empty ServiceURL disables the remote parser entirely.
type ParserConfig struct {
	ServiceURL     string
	TimeoutSeconds int
}

// EmbeddingConfig holds embedding service configuration.
type EmbeddingConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Task       string
	Dimensions int
	BatchSize  int
	RateLimit  int
}

// LLMConfig holds chat model configuration.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// IngestConfig holds ingestion pipeline configuration.
type IngestConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	ArxivChunkSize  int
	ArxivOverlap    int
	SummaryMaxChars int
	MaxUploadBytes  int64
}

// ChatConfig holds retrieval configuration for chat responses.
type ChatConfig struct {
	ContextTokenBudget int
	SimilarityFloor    float64
	SimilarityTopK     int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 30),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "paperchat"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "paperchat-pdfs"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
		},
		Parser: ParserConfig{
			ServiceURL:     getEnv("PARSER_SERVICE_URL", ""),
			TimeoutSeconds: getEnvAsInt("PARSER_TIMEOUT", 10),
		},
		Embedding: EmbeddingConfig{
			Endpoint:   getEnv("EMBEDDING_ENDPOINT", "https://api.jina.ai/v1/embeddings"),
			APIKey:     getEnv("EMBEDDING_API_KEY", ""),
			Model:      getEnv("EMBEDDING_MODEL", "jina-embeddings-v3"),
			Task:       getEnv("EMBEDDING_TASK", "retrieval.passage"),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1024),
			BatchSize:  getEnvAsInt("EMBEDDING_BATCH_SIZE", 10),
			RateLimit:  getEnvAsInt("EMBEDDING_RATE_LIMIT", 10),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 4096),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		},
		Ingest: IngestConfig{
			ChunkSize:       getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:    getEnvAsInt("CHUNK_OVERLAP", 200),
			ArxivChunkSize:  getEnvAsInt("ARXIV_CHUNK_SIZE", 2500),
			ArxivOverlap:    getEnvAsInt("ARXIV_CHUNK_OVERLAP", 500),
			SummaryMaxChars: getEnvAsInt("SUMMARY_MAX_CHARS", 50000),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Chat: ChatConfig{
			ContextTokenBudget: getEnvAsInt("CONTEXT_TOKEN_BUDGET", 100000),
			SimilarityFloor:    getEnvAsFloat("SIMILARITY_FLOOR", 0.1),
			SimilarityTopK:     getEnvAsInt("SIMILARITY_TOP_K", 15),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			AddSource: getEnvAsBool("LOG_ADD_SOURCE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("EMBEDDING_API_KEY must be set")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY must be set")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.ArxivOverlap >= c.Ingest.ArxivChunkSize {
		return fmt.Errorf("ARXIV_CHUNK_OVERLAP (%d) must be smaller than ARXIV_CHUNK_SIZE (%d)", c.Ingest.ArxivOverlap, c.Ingest.ArxivChunkSize)
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
