package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/storage"
)

// Sentinel errors surfaced by Respond.
var (
	ErrSessionNotFound     = errors.New("chat session not found")
	ErrInsufficientContext = errors.New("no relevant content found for query")
)

// tokenEncoding is the tokenizer used to decide whether a paper's full text
// fits the model context budget.
const tokenEncoding = "cl100k_base"

const systemPromptTemplate = `You are a research assistant helping a reader understand an academic paper titled "%s".

Paper content:
%s

Rules:
- Answer directly from the paper content above.
- Do not bring in outside knowledge or speculate beyond the paper.
- If the paper does not contain the information needed, say so plainly.
- Be concise.`

// RetrievalStore is the subset of the paper store the responder needs.
type RetrievalStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*storage.Paper, error)
	GetFullText(ctx context.Context, paperID uuid.UUID) (string, error)
	SimilaritySearch(ctx context.Context, paperID uuid.UUID, queryVector []float32, minScore float64, limit int) ([]storage.ScoredChunk, error)
}

// MessageStore is the subset of the chat store the responder needs.
type MessageStore interface {
	AppendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (uuid.UUID, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]storage.Message, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes context assembly.
type Config struct {
	// ContextTokenBudget is the largest full text, in tokens, sent to the
	// model verbatim. Longer papers switch to similarity retrieval.
	ContextTokenBudget int
	// SimilarityFloor is the exclusive minimum score for retrieved chunks.
	SimilarityFloor float64
	// SimilarityTopK bounds how many chunks similarity retrieval returns.
	SimilarityTopK int
}

// DefaultConfig returns default responder configuration.
func DefaultConfig() Config {
	return Config{
		ContextTokenBudget: 100000,
		SimilarityFloor:    0.1,
		SimilarityTopK:     15,
	}
}

// Responder answers user queries about a paper over a streaming LLM,
// grounding each answer in either the paper's full text or its most similar
// chunks.
type Responder struct {
	papers   RetrievalStore
	messages MessageStore
	sessions *SessionManager
	embedder QueryEmbedder
	provider llm.Provider
	config   Config
	logger   *slog.Logger

	countTokens func(text string) int
}

// NewResponder creates a responder. It fails only when the token encoding
// cannot be loaded.
func NewResponder(papers RetrievalStore, messages MessageStore, sessions *SessionManager, embedder QueryEmbedder, provider llm.Provider, config Config, logger *slog.Logger) (*Responder, error) {
	codec, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %s: %w", tokenEncoding, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.ContextTokenBudget <= 0 {
		config = DefaultConfig()
	}
	return &Responder{
		papers:   papers,
		messages: messages,
		sessions: sessions,
		embedder: embedder,
		provider: provider,
		config:   config,
		logger:   logger.With("component", "chat-responder"),
		countTokens: func(text string) int {
			return len(codec.Encode(text, nil, nil))
		},
	}, nil
}

// Reply exposes a streaming answer. Tokens yields generated fragments as they
// arrive; Wait blocks until the stream resolves and returns the complete text
// or the terminal error. The assistant turn is persisted before Wait returns,
// and only when the stream finished cleanly.
type Reply struct {
	stream *llm.Stream
	done   chan struct{}
	text   string
	err    error
}

// Tokens returns the channel of generated text fragments. It is closed when
// generation ends for any reason.
func (r *Reply) Tokens() <-chan string {
	return r.stream.Tokens()
}

// Wait blocks until generation and persistence complete.
func (r *Reply) Wait() (string, error) {
	<-r.done
	return r.text, r.err
}

// Respond runs one conversation turn. The user message is persisted before
// generation starts, so an interrupted answer still leaves the question in the
// transcript. The assistant message is persisted only after a clean finish.
func (r *Responder) Respond(ctx context.Context, chatID uuid.UUID, query string) (*Reply, error) {
	session, err := r.sessions.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	paper, err := r.papers.FindByID(ctx, session.PaperID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, fmt.Errorf("paper %s referenced by session %s not found", session.PaperID, chatID)
	}

	if _, err := r.messages.AppendMessage(ctx, chatID, storage.RoleUser, query); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	r.sessions.EnsureTitled(ctx, session, query)

	contextText, err := r.buildContext(ctx, paper, query)
	if err != nil {
		return nil, err
	}

	history, err := r.messages.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	req := llm.ChatRequest{
		SystemPrompt: fmt.Sprintf(systemPromptTemplate, paper.Title, contextText),
		Messages:     historyToMessages(history),
	}

	stream, err := r.provider.ChatStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start generation: %w", err)
	}

	reply := &Reply{stream: stream, done: make(chan struct{})}
	go r.resolve(ctx, chatID, reply)
	return reply, nil
}

// resolve waits for the stream outcome and persists the assistant turn on a
// clean finish. A canceled or failed stream persists nothing.
func (r *Responder) resolve(ctx context.Context, chatID uuid.UUID, reply *Reply) {
	defer close(reply.done)

	text, err := reply.stream.Final()
	if err != nil {
		reply.err = err
		r.logger.Warn("generation did not finish cleanly", "chat_id", chatID, "error", err)
		return
	}
	reply.text = text

	// Persistence must survive the caller disconnecting right after the last
	// token was delivered.
	persistCtx := context.WithoutCancel(ctx)
	if _, err := r.messages.AppendMessage(persistCtx, chatID, storage.RoleAssistant, text); err != nil {
		reply.err = fmt.Errorf("failed to persist assistant message: %w", err)
		r.logger.Error("failed to persist assistant message", "chat_id", chatID, "error", err)
	}
}

// buildContext picks the grounding strategy: the whole paper when it fits the
// token budget, otherwise the top similar chunks above the score floor.
func (r *Responder) buildContext(ctx context.Context, paper *storage.Paper, query string) (string, error) {
	fullText, err := r.papers.GetFullText(ctx, paper.ID)
	if err != nil {
		return "", err
	}

	if fullText != "" {
		tokens := r.countTokens(fullText)
		if tokens <= r.config.ContextTokenBudget {
			r.logger.Debug("using full-text context", "paper_id", paper.ID, "tokens", tokens)
			return fullText, nil
		}
		r.logger.Debug("full text exceeds budget, falling back to retrieval",
			"paper_id", paper.ID, "tokens", tokens, "budget", r.config.ContextTokenBudget)
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := r.papers.SimilaritySearch(ctx, paper.ID, queryVector, r.config.SimilarityFloor, r.config.SimilarityTopK)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", ErrInsufficientContext
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n"), nil
}

// historyToMessages converts the stored transcript to provider messages,
// dropping whitespace-only turns that some clients submit.
func historyToMessages(history []storage.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == storage.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
