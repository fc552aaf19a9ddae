// Package llm provides access to chat-completion model providers.
package llm

import "context"

// Role constants for chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a streaming chat request.
type ChatRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
}

// Provider defines the interface chat and summarization depend on.
type Provider interface {
	// ChatStream starts a streaming completion. Tokens arrive on the
	// returned Stream as they are generated.
	ChatStream(ctx context.Context, req ChatRequest) (*Stream, error)

	// Complete performs a single-shot, non-streamed completion.
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)

	// Model returns the model name being used.
	Model() string
}

// Stream is a two-phase handle on a streaming completion: consumers drain
// Tokens, then call Final to obtain the assembled text. Final blocks until
// generation ends and reports the error, if any, that terminated the stream.
// Dropping the stream without calling Final is the cancellation path; no
// final text is ever observed for a canceled stream.
type Stream struct {
	tokens chan string
	done   chan struct{}
	final  string
	err    error
}

// NewStream creates an unresolved stream. The producer pushes deltas with
// Emit and must call Finish exactly once.
func NewStream() *Stream {
	return &Stream{
		tokens: make(chan string),
		done:   make(chan struct{}),
	}
}

// Tokens returns the channel of incremental text deltas. It is closed when
// generation ends, for any reason.
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Final blocks until the stream has ended and returns the full assembled
// text, or the error that interrupted generation.
func (s *Stream) Final() (string, error) {
	<-s.done
	return s.final, s.err
}

// Emit delivers one delta to the consumer. It returns the context error when
// the consumer goes away before accepting the token.
func (s *Stream) Emit(ctx context.Context, token string) error {
	select {
	case s.tokens <- token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish resolves the stream and closes the token channel. Exactly one of
// text/err is meaningful.
func (s *Stream) Finish(text string, err error) {
	s.final = text
	s.err = err
	close(s.tokens)
	close(s.done)
}
