package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultChatTitle is the sentinel title given to a chat session before the
// first user query arrives.
const DefaultChatTitle = "New Conversation"

// Paper represents an ingested document. Exactly one row exists per distinct
// FileHash; two sources resolving to byte-identical content collapse to one row.
type Paper struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	ExternalID sql.NullString `json:"external_id" db:"external_id"`
	Title      string         `json:"title" db:"title"`
	Abstract   sql.NullString `json:"abstract" db:"abstract"`
	Summary    sql.NullString `json:"summary" db:"summary"`
	FullText   sql.NullString `json:"full_text" db:"full_text"`
	FileHash   string         `json:"file_hash" db:"file_hash"`
	PDFData    sql.NullString `json:"-" db:"pdf_data"` // base64-encoded raw bytes
	SourceURL  sql.NullString `json:"source_url" db:"source_url"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// Chunk represents a bounded, overlapping span of a paper's extracted text
// together with its embedding.
type Chunk struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PaperID   uuid.UUID `json:"paper_id" db:"paper_id"`
	Content   string    `json:"content" db:"content"`
	Embedding []float32 `json:"embedding,omitempty" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChatSession represents a conversation tied to one (user, paper) pair.
type ChatSession struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PaperID   uuid.UUID `json:"paper_id" db:"paper_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Message represents one turn in a chat session. Messages are append-only and
// ordered by CreatedAt within a session.
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ChatID    uuid.UUID `json:"chat_id" db:"chat_id"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ScoredChunk is a chunk content span with its similarity score.
type ScoredChunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// InsertResult is the outcome of an optimistic paper insert. When a concurrent
// writer won the race on file_hash, Inserted is false and Paper holds the
// winner's row.
type InsertResult struct {
	Inserted bool
	Paper    *Paper
}
