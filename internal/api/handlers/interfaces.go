// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperchat/paperchat/internal/ingest"
	"github.com/paperchat/paperchat/internal/storage"
)

// Ingestor runs the document ingestion pipeline.
type Ingestor interface {
	IngestUpload(ctx context.Context, userID, fileName string, data []byte) (*ingest.Result, error)
	IngestArxiv(ctx context.Context, userID, rawID string) (*ingest.Result, error)
}

// PaperReader reads persisted papers.
type PaperReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*storage.Paper, error)
	GetPDFData(ctx context.Context, paperID uuid.UUID) (string, error)
}

// BinaryCache is a best-effort cache for base64-encoded PDF bytes.
type BinaryCache interface {
	Get(ctx context.Context, paperID string) (string, bool)
	Put(ctx context.Context, paperID, base64Data string)
}

// ArchiveReader recovers archived PDF binaries from object storage.
type ArchiveReader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// SessionService manages chat sessions.
type SessionService interface {
	Ensure(ctx context.Context, userID string, paperID uuid.UUID) (*storage.ChatSession, error)
	History(ctx context.Context, chatID uuid.UUID) ([]storage.Message, error)
}

// Reply is a streaming answer in flight.
type Reply interface {
	Tokens() <-chan string
	Wait() (string, error)
}

// ChatService generates grounded answers for a chat session.
type ChatService interface {
	Respond(ctx context.Context, chatID uuid.UUID, query string) (Reply, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}
