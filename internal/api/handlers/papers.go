package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperchat/paperchat/internal/extractor"
	"github.com/paperchat/paperchat/internal/ingest"
	"github.com/paperchat/paperchat/internal/storage"
)

// userIDHeader carries the caller identity. Absent means anonymous.
const userIDHeader = "X-User-ID"

const anonymousUser = "anonymous"

// LoadRequestBody is the body for ingesting a paper by arXiv id.
type LoadRequestBody struct {
	ArxivID string `json:"arxiv_id"`
}

// PaperInfo is the public view of a stored paper.
type PaperInfo struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Title      string `json:"title"`
	Abstract   string `json:"abstract,omitempty"`
	Summary    string `json:"summary,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func requestUser(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(userIDHeader)); id != "" {
		return id
	}
	return anonymousUser
}

// HandleUpload returns a handler for multipart PDF uploads.
// POST /api/v1/papers/upload
func HandleUpload(ingestor Ingestor, maxBytes int64, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				RespondError(w, http.StatusRequestEntityTooLarge, ErrCodeValidation,
					fmt.Sprintf("File exceeds the %d byte limit", maxBytes))
				return
			}
			RespondBadRequest(w, "Multipart field 'file' is required")
			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
			RespondBadRequest(w, "Only PDF files are accepted")
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				RespondError(w, http.StatusRequestEntityTooLarge, ErrCodeValidation,
					fmt.Sprintf("File exceeds the %d byte limit", maxBytes))
				return
			}
			logger.Warn("failed to read upload", "error", err)
			RespondBadRequest(w, "Failed to read uploaded file")
			return
		}
		if len(data) == 0 {
			RespondBadRequest(w, "Uploaded file is empty")
			return
		}

		result, err := ingestor.IngestUpload(r.Context(), requestUser(r), header.Filename, data)
		if err != nil {
			respondIngestError(w, logger, err)
			return
		}

		status := http.StatusCreated
		if result.Deduplicated {
			status = http.StatusOK
		}
		RespondJSON(w, status, result)
	}
}

// HandleLoad returns a handler for ingesting a paper by arXiv id.
// POST /api/v1/papers/load
func HandleLoad(ingestor Ingestor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondBadRequest(w, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.ArxivID) == "" {
			RespondBadRequest(w, "arxiv_id is required")
			return
		}

		result, err := ingestor.IngestArxiv(r.Context(), requestUser(r), req.ArxivID)
		if err != nil {
			respondIngestError(w, logger, err)
			return
		}

		status := http.StatusCreated
		if result.Deduplicated {
			status = http.StatusOK
		}
		RespondJSON(w, status, result)
	}
}

// GetPaper returns a handler serving paper metadata.
// GET /api/v1/papers/{id}
func GetPaper(papers PaperReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := paperIDParam(w, r)
		if !ok {
			return
		}

		paper, err := papers.FindByID(r.Context(), id)
		if err != nil {
			logger.Error("failed to load paper", "paper_id", id, "error", err)
			RespondInternalError(w, "")
			return
		}
		if paper == nil {
			RespondNotFound(w, "Paper not found")
			return
		}

		info := PaperInfo{
			ID:         paper.ID.String(),
			ExternalID: paper.ExternalID.String,
			Title:      paper.Title,
			Abstract:   paper.Abstract.String,
			Summary:    paper.Summary.String,
			SourceURL:  paper.SourceURL.String,
			CreatedAt:  paper.CreatedAt.UTC().Format(time.RFC3339),
		}
		RespondSuccess(w, info)
	}
}

// GetPaperFile returns a handler serving the original PDF bytes, read through
// the binary cache when one is configured. When the database row carries no
// binary the object storage archive is tried before giving up.
// GET /api/v1/papers/{id}/file
func GetPaperFile(papers PaperReader, cache BinaryCache, archive ArchiveReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := paperIDParam(w, r)
		if !ok {
			return
		}

		encoded := ""
		cached := false
		if cache != nil {
			encoded, cached = cache.Get(r.Context(), id.String())
		}
		if !cached {
			var err error
			encoded, err = papers.GetPDFData(r.Context(), id)
			if err != nil {
				logger.Error("failed to load PDF data", "paper_id", id, "error", err)
				RespondInternalError(w, "")
				return
			}
			if encoded == "" && archive != nil {
				raw, err := archive.Download(r.Context(), storage.PDFArchivePath(id.String()))
				if err != nil {
					logger.Warn("archive lookup failed", "paper_id", id, "error", err)
				} else {
					encoded = base64.StdEncoding.EncodeToString(raw)
				}
			}
			if encoded == "" {
				RespondNotFound(w, "Paper not found")
				return
			}
			if cache != nil {
				cache.Put(r.Context(), id.String(), encoded)
			}
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			logger.Error("stored PDF data is corrupt", "paper_id", id, "error", err)
			RespondInternalError(w, "")
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logger.Warn("failed to write PDF response", "paper_id", id, "error", err)
		}
	}
}

// GetHistory returns a handler serving the caller's transcript for a paper.
// GET /api/v1/papers/{id}/history
func GetHistory(sessions SessionService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := paperIDParam(w, r)
		if !ok {
			return
		}

		session, err := sessions.Ensure(r.Context(), requestUser(r), id)
		if err != nil {
			logger.Error("failed to resolve chat session", "paper_id", id, "error", err)
			RespondInternalError(w, "")
			return
		}

		messages, err := sessions.History(r.Context(), session.ID)
		if err != nil {
			logger.Error("failed to load history", "chat_id", session.ID, "error", err)
			RespondInternalError(w, "")
			return
		}

		RespondSuccess(w, map[string]any{
			"chat_id":  session.ID.String(),
			"title":    session.Title,
			"messages": messages,
		})
	}
}

func paperIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondBadRequest(w, "Invalid paper id")
		return uuid.Nil, false
	}
	return id, true
}

func respondIngestError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ingest.ErrNoTextExtracted):
		RespondError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
			"No text could be extracted from the document")
	case errors.Is(err, extractor.ErrExtractionFailed):
		RespondError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
			"Failed to parse the document")
	default:
		logger.Error("ingestion failed", "error", err)
		RespondInternalError(w, "Ingestion failed")
	}
}
