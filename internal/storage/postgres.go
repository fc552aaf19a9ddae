// Package storage provides database, cache and object storage access.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// PostgresDB wraps the database connection pool.
type PostgresDB struct {
	*sql.DB
	config PostgresConfig
}

// NewPostgres creates a new PostgreSQL connection pool.
func NewPostgres(cfg PostgresConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db, config: cfg}, nil
}

// Close closes the database connection pool.
func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

// Health checks database connectivity.
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// WithTx executes a function within a transaction.
func (db *PostgresDB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// EnsureSchema creates the tables and indexes the store depends on.
// dimensions must match the embedding service output.
func (db *PostgresDB) EnsureSchema(ctx context.Context, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS papers (
			id          UUID PRIMARY KEY,
			external_id TEXT UNIQUE,
			title       TEXT NOT NULL,
			abstract    TEXT,
			summary     TEXT,
			full_text   TEXT,
			file_hash   TEXT NOT NULL UNIQUE,
			pdf_data    TEXT,
			source_url  TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS paper_chunks (
			id         UUID PRIMARY KEY,
			paper_id   UUID NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			content    TEXT NOT NULL,
			embedding  vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS paper_chunks_paper_id_idx ON paper_chunks (paper_id)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id         UUID PRIMARY KEY,
			user_id    TEXT NOT NULL,
			paper_id   UUID NOT NULL REFERENCES papers(id),
			title      TEXT NOT NULL DEFAULT 'New Conversation',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, paper_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         UUID PRIMARY KEY,
			chat_id    UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS messages_chat_id_created_at_idx ON messages (chat_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
