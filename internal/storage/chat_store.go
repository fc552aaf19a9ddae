package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ChatStore persists chat sessions and their messages.
type ChatStore struct {
	db     *PostgresDB
	logger *slog.Logger
}

// NewChatStore creates a new ChatStore instance.
func NewChatStore(db *PostgresDB, logger *slog.Logger) *ChatStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatStore{
		db:     db,
		logger: logger.With("component", "chat_store"),
	}
}

// FindOrCreateSession returns the session for (userID, paperID), creating it
// with the sentinel title when absent. The unique constraint on
// (user_id, paper_id) makes this atomic under concurrent callers: the insert
// is a no-op for the losers and everyone reads back the same row.
func (s *ChatStore) FindOrCreateSession(ctx context.Context, userID string, paperID uuid.UUID) (*ChatSession, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, paper_id, title)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, paper_id) DO NOTHING
	`, uuid.New(), userID, paperID, DefaultChatTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	session, err := s.FindSession(ctx, userID, paperID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("chat session missing after insert for user %s", userID)
	}
	return session, nil
}

// FindSession returns the session for (userID, paperID), or nil if none exists.
func (s *ChatStore) FindSession(ctx context.Context, userID string, paperID uuid.UUID) (*ChatSession, error) {
	var session ChatSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, paper_id, title, created_at
		FROM chat_sessions
		WHERE user_id = $1 AND paper_id = $2
	`, userID, paperID).Scan(
		&session.ID,
		&session.UserID,
		&session.PaperID,
		&session.Title,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat session: %w", err)
	}
	return &session, nil
}

// GetSession returns a session by id, or nil if none exists.
func (s *ChatStore) GetSession(ctx context.Context, chatID uuid.UUID) (*ChatSession, error) {
	var session ChatSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, paper_id, title, created_at
		FROM chat_sessions
		WHERE id = $1
	`, chatID).Scan(
		&session.ID,
		&session.UserID,
		&session.PaperID,
		&session.Title,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat session: %w", err)
	}
	return &session, nil
}

// AppendMessage appends one turn to a session's transcript.
func (s *ChatStore) AppendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, content)
		VALUES ($1, $2, $3, $4)
	`, id, chatID, role, content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append message: %w", err)
	}
	return id, nil
}

// ListMessages returns a session's transcript in chronological order.
func (s *ChatStore) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return messages, nil
}

// UpdateTitle replaces a session's title. Only ever called to replace the
// sentinel default with a snippet of the first user query.
func (s *ChatStore) UpdateTitle(ctx context.Context, chatID uuid.UUID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = $2 WHERE id = $1`, chatID, title)
	if err != nil {
		return fmt.Errorf("failed to update chat title: %w", err)
	}
	return nil
}
