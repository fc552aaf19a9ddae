package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	arxivAPIBase = "http://export.arxiv.org/api/query"
	arxivPDFBase = "https://arxiv.org/pdf"
	arxivTimeout = 30 * time.Second
	maxPDFBytes  = 50 << 20
)

// ArxivMeta is the metadata retrieved for one arXiv entry.
type ArxivMeta struct {
	Title    string
	Abstract string
}

// NormalizeArxivID reduces a raw identifier or abs/pdf URL to a bare arXiv id
// such as "2301.12345" or "cs/0112017". Returns "" for unusable input.
func NormalizeArxivID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}
	if u, err := url.Parse(id); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		id = strings.Trim(u.Path, "/")
		id = strings.TrimPrefix(id, "abs/")
		id = strings.TrimPrefix(id, "pdf/")
	}
	id = strings.TrimPrefix(id, "arXiv:")
	id = strings.TrimSuffix(id, ".pdf")
	id = strings.TrimSpace(id)
	if strings.ContainsAny(id, " \t\n") {
		return ""
	}
	return id
}

// PDFURL returns the canonical PDF download URL for an arXiv id.
func PDFURL(arxivID string) string {
	return fmt.Sprintf("%s/%s.pdf", arxivPDFBase, arxivID)
}

// ArxivFetcher talks to the public arXiv API and PDF mirror.
type ArxivFetcher struct {
	client  *http.Client
	apiBase string
	pdfBase string
}

// NewArxivFetcher creates a fetcher with a bounded-timeout HTTP client.
func NewArxivFetcher(client *http.Client) *ArxivFetcher {
	if client == nil {
		client = &http.Client{Timeout: arxivTimeout}
	}
	return &ArxivFetcher{
		client:  client,
		apiBase: arxivAPIBase,
		pdfBase: arxivPDFBase,
	}
}

// Atom feed subset returned by the arXiv query API.
type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
}

// Metadata fetches title and abstract for an arXiv id from the Atom API.
func (f *ArxivFetcher) Metadata(ctx context.Context, arxivID string) (ArxivMeta, error) {
	endpoint := fmt.Sprintf("%s?id_list=%s&max_results=1", f.apiBase, url.QueryEscape(arxivID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ArxivMeta{}, fmt.Errorf("failed to create metadata request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ArxivMeta{}, fmt.Errorf("arXiv metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ArxivMeta{}, fmt.Errorf("arXiv metadata request returned status %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return ArxivMeta{}, fmt.Errorf("failed to parse arXiv feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return ArxivMeta{}, fmt.Errorf("arXiv id %s not found", arxivID)
	}

	entry := feed.Entries[0]
	// The API answers "not found" with a feed whose single entry has no id link.
	if entry.Title == "" && entry.ID == "" {
		return ArxivMeta{}, fmt.Errorf("arXiv id %s not found", arxivID)
	}

	return ArxivMeta{
		Title:    collapseFeedText(entry.Title),
		Abstract: collapseFeedText(entry.Summary),
	}, nil
}

// Download fetches the PDF bytes for an arXiv id.
func (f *ArxivFetcher) Download(ctx context.Context, arxivID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s.pdf", f.pdfBase, arxivID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arXiv PDF download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv PDF download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read arXiv PDF body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("arXiv PDF download for %s returned empty body", arxivID)
	}

	return data, nil
}

// collapseFeedText removes the hard-wrapped newlines the Atom API inserts.
func collapseFeedText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
