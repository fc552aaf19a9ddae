package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Size: 1000, Overlap: 200}, false},
		{"zero overlap", Config{Size: 100, Overlap: 0}, false},
		{"zero size", Config{Size: 0, Overlap: 0}, true},
		{"negative size", Config{Size: -1, Overlap: 0}, true},
		{"negative overlap", Config{Size: 100, Overlap: -1}, true},
		{"overlap equals size", Config{Size: 100, Overlap: 100}, true},
		{"overlap exceeds size", Config{Size: 100, Overlap: 150}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplitShortInput(t *testing.T) {
	c, err := New(Config{Size: 1000, Overlap: 200})
	require.NoError(t, err)

	chunks := c.Split("a short document")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short document", chunks[0])
}

func TestSplitCollapsesWhitespace(t *testing.T) {
	c, err := New(Config{Size: 1000, Overlap: 200})
	require.NoError(t, err)

	chunks := c.Split("  line one\n\n\nline   two\t\tend  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "line one line two end", chunks[0])
}

func TestSplitOverlap(t *testing.T) {
	// Words of fixed width make the overlap visible: with size 20 and
	// overlap 10, each chunk should repeat the tail of its predecessor.
	text := strings.Repeat("abcd ", 20) // 100 chars
	c, err := New(Config{Size: 20, Overlap: 10})
	require.NoError(t, err)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-4:]
		assert.Contains(t, chunks[i], tail, "chunk %d should overlap chunk %d", i, i-1)
	}
}

func TestSplitSeeksWordBoundary(t *testing.T) {
	// The first space after the nominal cut point is at offset 25; the
	// window should extend to it instead of cutting inside the word.
	text := strings.Repeat("x", 25) + " tail words here"
	c, err := New(Config{Size: 20, Overlap: 5})
	require.NoError(t, err)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("x", 25), chunks[0])
}

func TestSplitCutsWhenNoBoundaryNearby(t *testing.T) {
	// No whitespace within the lookahead: the chunker must cut mid-word
	// rather than grow without bound.
	text := strings.Repeat("y", 500)
	c, err := New(Config{Size: 100, Overlap: 20})
	require.NoError(t, err)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, len(chunks[0]))
}

func TestSplitCoversWholeInput(t *testing.T) {
	// Every position of the input must land in at least one chunk. Marker
	// words at known offsets verify nothing is skipped.
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("word")
		b.WriteByte(' ')
	}
	text := strings.TrimSpace(b.String()) // 4999 chars

	c, err := New(Config{Size: 1000, Overlap: 200})
	require.NoError(t, err)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	// Step is 800, so ~7 chunks for 4999 chars.
	assert.Equal(t, (len(text)+799)/800, len(chunks))

	total := 0
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 1000+100)
		total += len(chunk)
	}
	// Overlap means the sum exceeds the input length.
	assert.Greater(t, total, len(text))
}

func TestSplitPreservesMultiByteRunes(t *testing.T) {
	// Size and Overlap count runes, so a window must never cut through a
	// multi-byte sequence.
	text := strings.Repeat("日", 40)
	c, err := New(Config{Size: 10, Overlap: 2})
	require.NoError(t, err)

	chunks := c.Split(text)
	require.Len(t, chunks, 5)
	for i, chunk := range chunks {
		require.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8: %q", i, chunk)
	}
	assert.Equal(t, strings.Repeat("日", 10), chunks[0])
	assert.Equal(t, strings.Repeat("日", 8), chunks[4])
}

func TestSplitMixedWidthInputStaysValid(t *testing.T) {
	text := strings.Repeat("naïve café résumé ", 100)
	c, err := New(Config{Size: 50, Overlap: 10})
	require.NoError(t, err)

	for i, chunk := range c.Split(text) {
		require.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8: %q", i, chunk)
	}
}

func TestSplitSeeksNewlineBoundary(t *testing.T) {
	// The first whitespace past the cut point is a newline, not a space; the
	// window should still extend to it instead of cutting inside the word.
	c, err := New(Config{Size: 8, Overlap: 0})
	require.NoError(t, err)

	chunks := c.Split("aaa bbbbbb\nccc")
	require.NotEmpty(t, chunks)
	assert.Equal(t, "aaa bbbbbb", chunks[0])
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 50)
	c, err := New(Config{Size: 300, Overlap: 60})
	require.NoError(t, err)

	first := c.Split(text)
	second := c.Split(text)
	assert.Equal(t, first, second)
}
