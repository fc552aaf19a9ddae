package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	completion  string
	completeErr error
	lastPrompt  string
}

func (p *stubProvider) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	p.lastPrompt = prompt
	return p.completion, p.completeErr
}

func (p *stubProvider) Model() string { return "stub" }

func TestStreamTwoPhase(t *testing.T) {
	s := NewStream()

	go func() {
		require.NoError(t, s.Emit(context.Background(), "a"))
		require.NoError(t, s.Emit(context.Background(), "b"))
		s.Finish("ab", nil)
	}()

	var got []string
	for tok := range s.Tokens() {
		got = append(got, tok)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	text, err := s.Final()
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestStreamFinishWithError(t *testing.T) {
	s := NewStream()
	s.Finish("", errors.New("interrupted"))

	_, open := <-s.Tokens()
	assert.False(t, open, "token channel must be closed after Finish")

	text, err := s.Final()
	assert.Error(t, err)
	assert.Empty(t, text)
}

func TestStreamEmitObservesContext(t *testing.T) {
	s := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Emit(ctx, "never delivered")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	p := &stubProvider{completion: "**Core Problem:** something"}
	s := NewSummarizer(p, 0, nil)

	got := s.Summarize(context.Background(), "paper text")
	assert.Equal(t, "**Core Problem:** something", got)
	assert.Contains(t, p.lastPrompt, "paper text")
}

func TestSummarizeTruncatesInput(t *testing.T) {
	p := &stubProvider{completion: "ok"}
	s := NewSummarizer(p, 100, nil)

	s.Summarize(context.Background(), strings.Repeat("x", 500))
	// Prompt = header + truncated text.
	assert.Less(t, len(p.lastPrompt), len(summarizerPromptHeader)+200)
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	p := &stubProvider{completion: "ok"}
	s := NewSummarizer(p, 10, nil)

	s.Summarize(context.Background(), strings.Repeat("ü", 30))

	sent := strings.TrimPrefix(p.lastPrompt, summarizerPromptHeader)
	require.True(t, utf8.ValidString(sent), "truncated prompt tail is not valid UTF-8: %q", sent)
	assert.Equal(t, strings.Repeat("ü", 10), sent)
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	p := &stubProvider{completeErr: errors.New("model offline")}
	s := NewSummarizer(p, 0, nil)

	assert.Equal(t, FallbackSummary, s.Summarize(context.Background(), "text"))
}

func TestBuildRequestMapsRolesAndDefaults(t *testing.T) {
	c := &Client{config: ClientConfig{Model: "m", MaxTokens: 512, Temperature: 0.3}}

	req := c.buildRequest(ChatRequest{
		SystemPrompt: "be helpful",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	})

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, 512, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 0.001)

	// Per-request values override the client defaults.
	req = c.buildRequest(ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens:   64,
		Temperature: 0.9,
	})
	assert.Equal(t, 64, req.MaxTokens)
	assert.InDelta(t, 0.9, req.Temperature, 0.001)
}
