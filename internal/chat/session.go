// Package chat manages conversation sessions and generates retrieval-augmented
// answers about ingested papers.
package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/paperchat/paperchat/internal/storage"
)

// titleMaxChars bounds the auto-generated session title.
const titleMaxChars = 50

// SessionStore is the subset of the chat store the session manager needs.
type SessionStore interface {
	FindOrCreateSession(ctx context.Context, userID string, paperID uuid.UUID) (*storage.ChatSession, error)
	GetSession(ctx context.Context, chatID uuid.UUID) (*storage.ChatSession, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]storage.Message, error)
	UpdateTitle(ctx context.Context, chatID uuid.UUID, title string) error
}

// SessionManager provides session lookup, creation and titling.
type SessionManager struct {
	store  SessionStore
	logger *slog.Logger
}

// NewSessionManager creates a new session manager.
func NewSessionManager(store SessionStore, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:  store,
		logger: logger.With("component", "chat-sessions"),
	}
}

// Ensure returns the session for (userID, paperID), creating it with the
// placeholder title when absent.
func (m *SessionManager) Ensure(ctx context.Context, userID string, paperID uuid.UUID) (*storage.ChatSession, error) {
	return m.store.FindOrCreateSession(ctx, userID, paperID)
}

// Get returns a session by id, or nil when it does not exist.
func (m *SessionManager) Get(ctx context.Context, chatID uuid.UUID) (*storage.ChatSession, error) {
	return m.store.GetSession(ctx, chatID)
}

// History returns the ordered transcript of a session.
func (m *SessionManager) History(ctx context.Context, chatID uuid.UUID) ([]storage.Message, error) {
	return m.store.ListMessages(ctx, chatID)
}

// EnsureTitled replaces the placeholder title with one derived from the first
// user query. Titling is cosmetic: failures are logged and never surfaced.
func (m *SessionManager) EnsureTitled(ctx context.Context, session *storage.ChatSession, query string) {
	if session.Title != storage.DefaultChatTitle {
		return
	}
	title := AutoTitle(query)
	if title == "" {
		return
	}
	if err := m.store.UpdateTitle(ctx, session.ID, title); err != nil {
		m.logger.Warn("failed to update chat title", "chat_id", session.ID, "error", err)
		return
	}
	session.Title = title
}

// AutoTitle derives a session title from a user query: the first 50 characters,
// with an ellipsis when truncated. Characters are runes, so multi-byte text is
// never cut mid-sequence.
func AutoTitle(query string) string {
	q := []rune(strings.TrimSpace(query))
	if len(q) == 0 {
		return ""
	}
	if len(q) <= titleMaxChars {
		return string(q)
	}
	return string(q[:titleMaxChars]) + "..."
}
