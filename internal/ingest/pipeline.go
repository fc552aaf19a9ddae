// Package ingest orchestrates document ingestion: dedup, extraction,
// summarization, chunking, embedding and persistence.
package ingest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperchat/paperchat/internal/chunker"
	"github.com/paperchat/paperchat/internal/storage"
	"github.com/paperchat/paperchat/pkg/logger"
)

// ErrNoTextExtracted indicates extraction succeeded mechanically but yielded
// nothing usable. Terminal for the ingestion request; nothing is persisted.
var ErrNoTextExtracted = errors.New("no text could be extracted from document")

// abstractFallbackChars is how much of the full text seeds the abstract when
// no real abstract is known.
const abstractFallbackChars = 500

// PaperStore is the subset of the paper store the pipeline depends on.
type PaperStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*storage.Paper, error)
	FindByFileHash(ctx context.Context, fileHash string) (*storage.Paper, error)
	InsertPaper(ctx context.Context, paper *storage.Paper, chunks []storage.Chunk) (storage.InsertResult, error)
}

// ChatStore is the subset of the chat store the pipeline depends on.
type ChatStore interface {
	FindOrCreateSession(ctx context.Context, userID string, paperID uuid.UUID) (*storage.ChatSession, error)
}

// Extractor turns raw PDF bytes into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Summarizer produces a best-effort synopsis; it never fails.
type Summarizer interface {
	Summarize(ctx context.Context, fullText string) string
}

// Embedder converts text batches to vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache accepts best-effort binary blob writes.
type Cache interface {
	Put(ctx context.Context, paperID, base64Data string)
}

// Archive accepts opportunistic copies of original binaries. May be nil.
type Archive interface {
	UploadBytes(ctx context.Context, data []byte, path, contentType string) (string, error)
}

// ArxivClient fetches paper metadata and binaries from arXiv.
type ArxivClient interface {
	Metadata(ctx context.Context, arxivID string) (ArxivMeta, error)
	Download(ctx context.Context, arxivID string) ([]byte, error)
}

// Config holds pipeline configuration.
type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	ArxivChunkSize int
	ArxivOverlap   int
	EmbedBatchSize int
}

// DefaultConfig returns default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		ArxivChunkSize: 2500,
		ArxivOverlap:   500,
		EmbedBatchSize: 10,
	}
}

// Result describes the outcome of one ingestion request.
type Result struct {
	PaperID      uuid.UUID `json:"paper_id"`
	Title        string    `json:"title"`
	ChunkCount   int       `json:"chunks"`
	Deduplicated bool      `json:"deduplicated"`
}

// Pipeline runs the ingestion stages for uploads and arXiv fetches.
type Pipeline struct {
	papers     PaperStore
	chats      ChatStore
	extractor  Extractor
	summarizer Summarizer
	embedder   Embedder
	cache      Cache
	archive    Archive
	arxiv      ArxivClient
	config     Config
	log        *logger.Logger
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(papers PaperStore, chats ChatStore, ex Extractor, sum Summarizer, emb Embedder, cache Cache, archive Archive, arxiv ArxivClient, cfg Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 10
	}
	return &Pipeline{
		papers:     papers,
		chats:      chats,
		extractor:  ex,
		summarizer: sum,
		embedder:   emb,
		cache:      cache,
		archive:    archive,
		arxiv:      arxiv,
		config:     cfg,
		log:        log.WithComponent("ingest"),
	}
}

// source describes one document entering the pipeline.
type source struct {
	data       []byte
	externalID string
	title      string
	abstract   string
	sourceURL  string
	chunkSize  int
	overlap    int
}

// IngestUpload ingests an uploaded PDF on behalf of userID.
func (p *Pipeline) IngestUpload(ctx context.Context, userID, fileName string, data []byte) (*Result, error) {
	fileHash := hashBytes(data)

	existing, err := p.papers.FindByFileHash(ctx, fileHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.adoptExisting(ctx, userID, existing)
	}

	title := strings.TrimSuffix(fileName, ".pdf")
	title = strings.TrimSuffix(title, ".PDF")
	if strings.TrimSpace(title) == "" {
		title = "Untitled Document"
	}

	return p.ingestNew(ctx, userID, fileHash, source{
		data:      data,
		title:     title,
		chunkSize: p.config.ChunkSize,
		overlap:   p.config.ChunkOverlap,
	})
}

// IngestArxiv fetches a paper by arXiv id and ingests it on behalf of userID.
// Matching on the external id short-circuits before any download; matching on
// content hash short-circuits after download but before processing.
func (p *Pipeline) IngestArxiv(ctx context.Context, userID, rawID string) (*Result, error) {
	arxivID := NormalizeArxivID(rawID)
	if arxivID == "" {
		return nil, fmt.Errorf("invalid arXiv id %q", rawID)
	}

	existing, err := p.papers.FindByExternalID(ctx, arxivID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.adoptExisting(ctx, userID, existing)
	}

	// Metadata is best-effort; a failed lookup falls back to a generic title.
	title := "arXiv " + arxivID
	abstract := ""
	if meta, err := p.arxiv.Metadata(ctx, arxivID); err != nil {
		p.log.WithError(err).Warn("arXiv metadata fetch failed", "arxiv_id", arxivID)
	} else {
		if meta.Title != "" {
			title = meta.Title
		}
		abstract = meta.Abstract
	}

	data, err := p.arxiv.Download(ctx, arxivID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PDF for %s: %w", arxivID, err)
	}

	fileHash := hashBytes(data)
	if byHash, err := p.papers.FindByFileHash(ctx, fileHash); err != nil {
		return nil, err
	} else if byHash != nil {
		return p.adoptExisting(ctx, userID, byHash)
	}

	return p.ingestNew(ctx, userID, fileHash, source{
		data:       data,
		externalID: arxivID,
		title:      title,
		abstract:   abstract,
		sourceURL:  PDFURL(arxivID),
		chunkSize:  p.config.ArxivChunkSize,
		overlap:    p.config.ArxivOverlap,
	})
}

// adoptExisting is the dedup short-circuit: the caller still gets a chat
// session for the already-stored paper.
func (p *Pipeline) adoptExisting(ctx context.Context, userID string, paper *storage.Paper) (*Result, error) {
	if _, err := p.chats.FindOrCreateSession(ctx, userID, paper.ID); err != nil {
		return nil, err
	}
	p.log.Info("ingestion deduplicated", "paper_id", paper.ID, "file_hash", paper.FileHash)
	return &Result{
		PaperID:      paper.ID,
		Title:        paper.Title,
		Deduplicated: true,
	}, nil
}

// ingestNew runs extract, summarize, chunk+embed and persist for a document
// that passed the dedup checks.
func (p *Pipeline) ingestNew(ctx context.Context, userID, fileHash string, src source) (*Result, error) {
	start := time.Now()

	fullText, err := p.extractor.Extract(ctx, src.data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fullText) == "" {
		return nil, ErrNoTextExtracted
	}

	summary := p.summarizer.Summarize(ctx, fullText)

	splitter, err := chunker.New(chunker.Config{Size: src.chunkSize, Overlap: src.overlap})
	if err != nil {
		return nil, err
	}
	spans := splitter.Split(fullText)

	chunks, err := p.embedChunks(ctx, spans)
	if err != nil {
		return nil, err
	}

	abstract := src.abstract
	if abstract == "" {
		abstract = truncateRunes(fullText, abstractFallbackChars)
		if len(abstract) < len(fullText) {
			abstract += "..."
		}
	}

	paper := &storage.Paper{
		ID:       uuid.New(),
		Title:    src.title,
		Abstract: sql.NullString{String: abstract, Valid: true},
		Summary:  sql.NullString{String: summary, Valid: true},
		FullText: sql.NullString{String: fullText, Valid: true},
		FileHash: fileHash,
		PDFData:  sql.NullString{String: base64.StdEncoding.EncodeToString(src.data), Valid: true},
	}
	if src.externalID != "" {
		paper.ExternalID = sql.NullString{String: src.externalID, Valid: true}
	}
	if src.sourceURL != "" {
		paper.SourceURL = sql.NullString{String: src.sourceURL, Valid: true}
	}

	result, err := p.papers.InsertPaper(ctx, paper, chunks)
	if err != nil {
		return nil, err
	}
	if !result.Inserted {
		// Lost the race to a concurrent identical upload: local work is
		// discarded and the winner's row serves the caller.
		return p.adoptExisting(ctx, userID, result.Paper)
	}

	// Cache and archive are accelerators; neither may fail the pipeline.
	if p.cache != nil {
		p.cache.Put(ctx, paper.ID.String(), paper.PDFData.String)
	}
	if p.archive != nil {
		if _, err := p.archive.UploadBytes(ctx, src.data, storage.PDFArchivePath(paper.ID.String()), "application/pdf"); err != nil {
			p.log.WithError(err).Warn("binary archive failed, continuing", "paper_id", paper.ID)
		}
	}

	if _, err := p.chats.FindOrCreateSession(ctx, userID, paper.ID); err != nil {
		return nil, err
	}

	p.log.Info("ingestion complete",
		"paper_id", paper.ID,
		"chunks", len(chunks),
		"text_chars", len(fullText),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		PaperID:    paper.ID,
		Title:      src.title,
		ChunkCount: len(chunks),
	}, nil
}

// embedChunks embeds spans in fixed-size sequential batches to bound
// concurrent load on the embedding service. Any batch failure fails the whole
// ingestion: chunk sets are all-or-nothing.
func (p *Pipeline) embedChunks(ctx context.Context, spans []string) ([]storage.Chunk, error) {
	chunks := make([]storage.Chunk, 0, len(spans))

	for i := 0; i < len(spans); i += p.config.EmbedBatchSize {
		end := i + p.config.EmbedBatchSize
		if end > len(spans) {
			end = len(spans)
		}
		batch := spans[i:end]

		embeddings, err := p.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk batch at %d: %w", i, err)
		}

		for j, content := range batch {
			chunks = append(chunks, storage.Chunk{
				ID:        uuid.New(),
				Content:   content,
				Embedding: embeddings[j],
			})
		}
	}

	return chunks, nil
}

// hashBytes returns the hex SHA-256 of data, the dedup key for binaries.
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// truncateRunes cuts s after at most n runes, never splitting a multi-byte
// sequence.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
