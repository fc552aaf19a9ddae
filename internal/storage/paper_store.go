package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PaperStore persists papers and their chunks and serves similarity queries.
type PaperStore struct {
	db     *PostgresDB
	logger *slog.Logger
}

// NewPaperStore creates a new PaperStore instance.
func NewPaperStore(db *PostgresDB, logger *slog.Logger) *PaperStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperStore{
		db:     db,
		logger: logger.With("component", "paper_store"),
	}
}

// FindByExternalID returns the paper with the given external (e.g. arXiv) id,
// or nil if none exists.
func (s *PaperStore) FindByExternalID(ctx context.Context, externalID string) (*Paper, error) {
	return s.findOne(ctx, "external_id = $1", externalID)
}

// FindByFileHash returns the paper with the given content hash, or nil if none
// exists. This is the dedup check and must run before any insert attempt.
func (s *PaperStore) FindByFileHash(ctx context.Context, fileHash string) (*Paper, error) {
	return s.findOne(ctx, "file_hash = $1", fileHash)
}

// FindByID returns the paper with the given id, or nil if none exists.
func (s *PaperStore) FindByID(ctx context.Context, id uuid.UUID) (*Paper, error) {
	return s.findOne(ctx, "id = $1", id)
}

func (s *PaperStore) findOne(ctx context.Context, where string, arg any) (*Paper, error) {
	query := `
		SELECT id, external_id, title, abstract, summary, full_text,
		       file_hash, pdf_data, source_url, created_at
		FROM papers
		WHERE ` + where + `
		LIMIT 1
	`

	var p Paper
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID,
		&p.ExternalID,
		&p.Title,
		&p.Abstract,
		&p.Summary,
		&p.FullText,
		&p.FileHash,
		&p.PDFData,
		&p.SourceURL,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query paper: %w", err)
	}
	return &p, nil
}

// InsertPaper inserts a paper and all of its chunks in one transaction. The
// chunk set is never partially visible: either the whole transaction commits
// or nothing does. When a concurrent writer already inserted the same
// file_hash (or external_id), the loser's work is discarded and the winner's
// row is returned with Inserted=false; this is the expected resolution of
// concurrent ingestion of byte-identical content, not an error.
func (s *PaperStore) InsertPaper(ctx context.Context, paper *Paper, chunks []Chunk) (InsertResult, error) {
	start := time.Now()

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO papers (id, external_id, title, abstract, summary, full_text,
			                    file_hash, pdf_data, source_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			paper.ID,
			paper.ExternalID,
			paper.Title,
			paper.Abstract,
			paper.Summary,
			paper.FullText,
			paper.FileHash,
			paper.PDFData,
			paper.SourceURL,
		)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO paper_chunks (id, paper_id, content, embedding)
			VALUES ($1, $2, $3, $4::vector)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for i := range chunks {
			if chunks[i].ID == uuid.Nil {
				chunks[i].ID = uuid.New()
			}
			if _, err := stmt.ExecContext(ctx,
				chunks[i].ID,
				paper.ID,
				chunks[i].Content,
				embeddingToString(chunks[i].Embedding),
			); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
		}
		return nil
	})

	if err != nil {
		if isUniqueViolation(err) {
			existing, findErr := s.FindByFileHash(ctx, paper.FileHash)
			if findErr != nil {
				return InsertResult{}, findErr
			}
			if existing == nil {
				// Unique violation but no row by hash: the conflict was on
				// another key and the winner is not adoptable.
				return InsertResult{}, fmt.Errorf("insert conflicted but no paper found for hash: %w", err)
			}
			s.logger.Info("lost insert race, adopting existing paper",
				"paper_id", existing.ID,
				"file_hash", paper.FileHash,
			)
			return InsertResult{Inserted: false, Paper: existing}, nil
		}
		return InsertResult{}, fmt.Errorf("failed to insert paper: %w", err)
	}

	s.logger.Info("paper inserted",
		"paper_id", paper.ID,
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return InsertResult{Inserted: true, Paper: paper}, nil
}

// SimilaritySearch returns up to limit chunks of the given paper whose cosine
// similarity to the query vector is strictly greater than minScore, ranked by
// descending similarity.
func (s *PaperStore) SimilaritySearch(ctx context.Context, paperID uuid.UUID, queryVector []float32, minScore float64, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	embeddingStr := embeddingToString(queryVector)

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, 1 - (embedding <=> $2::vector) AS score
		FROM paper_chunks
		WHERE paper_id = $1
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2::vector) > $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4
	`, paperID, embeddingStr, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var c ScoredChunk
		if err := rows.Scan(&c.Content, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// GetFullText returns the stored extracted text for a paper, or "" when the
// paper has none.
func (s *PaperStore) GetFullText(ctx context.Context, paperID uuid.UUID) (string, error) {
	var fullText sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT full_text FROM papers WHERE id = $1`, paperID,
	).Scan(&fullText)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query full text: %w", err)
	}
	return fullText.String, nil
}

// GetPDFData returns the base64-encoded binary content for a paper, or "" when
// none is stored.
func (s *PaperStore) GetPDFData(ctx context.Context, paperID uuid.UUID) (string, error) {
	var data sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT pdf_data FROM papers WHERE id = $1`, paperID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query pdf data: %w", err)
	}
	return data.String, nil
}

// isUniqueViolation reports whether err wraps a PostgreSQL unique constraint
// violation. Detection is confined to the store so callers deal with the
// tagged InsertResult instead of driver error codes.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// embeddingToString converts a float32 slice to pgvector literal format.
func embeddingToString(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}

	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
