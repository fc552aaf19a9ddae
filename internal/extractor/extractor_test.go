package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pdfBytes is a minimal payload carrying the PDF magic number. It is not a
// parseable document; tests that reach the local parser expect failure.
var pdfBytes = []byte("%PDF-1.4 not a real document")

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7 rest")))
	assert.False(t, IsPDF([]byte("PK\x03\x04 a zip")))
	assert.False(t, IsPDF([]byte("%PD")))
	assert.False(t, IsPDF(nil))
}

func TestExtractRejectsNonPDF(t *testing.T) {
	e := New(DefaultConfig(), nil)

	_, err := e.Extract(context.Background(), []byte("plain text file"))
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractRemoteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/parse", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "paper.pdf", header.Filename)

		fmt.Fprint(w, `{"text":"extracted by remote parser"}`)
	}))
	defer srv.Close()

	e := New(Config{ServiceURL: srv.URL}, nil)

	text, err := e.Extract(context.Background(), pdfBytes)
	require.NoError(t, err)
	assert.Equal(t, "extracted by remote parser", text)
}

func TestExtractRemoteFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parser exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(Config{ServiceURL: srv.URL}, nil)

	// The payload is not a real PDF, so the local fallback fails too; what
	// matters is that the remote error did not short-circuit extraction.
	_, err := e.Extract(context.Background(), pdfBytes)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractRemoteUnreachableFallsBack(t *testing.T) {
	e := New(Config{ServiceURL: "http://127.0.0.1:1"}, nil)

	_, err := e.Extract(context.Background(), pdfBytes)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"normalizes line endings", "a\r\nb\rc", "a\nb\nc"},
		{"caps blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"trims lines", "  a  \n  b  ", "a\nb"},
		{"strips NUL", "a\x00b", "ab"},
		{"empty", "   \n  \n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}
