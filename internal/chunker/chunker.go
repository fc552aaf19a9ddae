// Package chunker splits extracted text into overlapping, bounded-size spans
// suitable for embedding and retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// boundaryLookahead is how far past the nominal cut point the chunker searches
// for a whitespace boundary before giving up and cutting mid-word.
const boundaryLookahead = 100

// Config holds chunker configuration.
type Config struct {
	Size    int // Maximum characters per chunk
	Overlap int // Characters shared by consecutive chunks
}

// DefaultConfig returns default chunker configuration.
func DefaultConfig() Config {
	return Config{Size: 1000, Overlap: 200}
}

// Chunker produces deterministic overlapping text spans. It is a pure
// function of its input and safe for concurrent use.
type Chunker struct {
	config Config
}

// New creates a new Chunker. Overlap must be strictly smaller than Size, or
// the window would never advance.
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.Size)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", cfg.Overlap)
	}
	if cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", cfg.Overlap, cfg.Size)
	}
	return &Chunker{config: cfg}, nil
}

// Split slides a character window over text. Size and Overlap count runes, so
// a window never cuts through a multi-byte sequence. Each window end is
// nudged forward to the next whitespace rune (within boundaryLookahead) to
// avoid cutting words; internal whitespace is collapsed and empty spans
// dropped. The start offset advances by Size-Overlap per iteration so
// consecutive spans overlap by Overlap characters.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	var chunks []string
	step := c.config.Size - c.config.Overlap

	for start := 0; start < len(runes); start += step {
		end := start + c.config.Size
		if end < len(runes) {
			if next := indexSpace(runes[end:], boundaryLookahead); next >= 0 {
				end += next
			}
		} else {
			end = len(runes)
		}

		chunk := strings.TrimSpace(collapseWhitespace(string(runes[start:end])))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// indexSpace returns the index of the first whitespace rune within the first
// limit runes, or -1 when there is none.
func indexSpace(runes []rune, limit int) int {
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := 0; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// collapseWhitespace replaces runs of whitespace with single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
