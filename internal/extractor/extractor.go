// Package extractor turns raw PDF bytes into plain text. A remote structured
// parser is tried first when configured; any failure falls through to a local
// in-process parser.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/paperchat/paperchat/pkg/logger"
)

// ErrExtractionFailed indicates that no text could be recovered from either
// the remote or the local parser.
var ErrExtractionFailed = errors.New("failed to extract text from PDF")

// Config holds extractor configuration. An empty ServiceURL disables the
// remote parser and extraction goes straight to the local path.
type Config struct {
	ServiceURL string
	Timeout    time.Duration
}

// DefaultConfig returns default extractor configuration.
func DefaultConfig() Config {
	return Config{Timeout: 10 * time.Second}
}

// Extractor extracts text from PDF binaries.
type Extractor struct {
	config Config
	client *http.Client
	log    *logger.Logger
}

// New creates a new Extractor.
func New(cfg Config, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Extractor{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithComponent("extractor"),
	}
}

// Extract returns the merged text of all pages. The result is never partial:
// either text comes back or an error does. An empty-but-successful local
// extraction returns "" with a nil error; callers decide how to treat
// documents without recoverable text.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	if !IsPDF(data) {
		return "", fmt.Errorf("%w: not a PDF", ErrExtractionFailed)
	}

	if e.config.ServiceURL != "" {
		text, err := e.extractRemote(ctx, data)
		if err == nil {
			return text, nil
		}
		e.log.WithError(err).Warn("remote parser failed, falling back to local parser")
	}

	text, err := e.extractLocal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return text, nil
}

// extractRemote posts the binary to the structured parser service.
func (e *Extractor) extractRemote(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "paper.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.ServiceURL+"/parse", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("parser service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("parser service returned %s", resp.Status)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode parser response: %w", err)
	}
	return parsed.Text, nil
}

// extractLocal parses the PDF in-process and merges all pages into one blob.
func (e *Extractor) extractLocal(data []byte) (string, error) {
	// go-fitz opens documents from a file path.
	tmpFile, err := os.CreateTemp("", "pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tmpFile.Close()

	doc, err := fitz.New(tmpFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			e.log.Warn("failed to extract page text", "page", i+1, "error", err)
			continue
		}
		if cleaned := cleanText(text); cleaned != "" {
			pages = append(pages, cleaned)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}

// IsPDF checks the PDF magic number.
func IsPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

var (
	reNewlines = regexp.MustCompile(`\n{3,}`)
	reSpaces   = regexp.MustCompile(`[ \t]+`)
)

// cleanText normalizes extracted page text.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	text = reSpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
