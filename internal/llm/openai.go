package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig holds configuration for the OpenAI-compatible client.
type ClientConfig struct {
	APIKey      string
	BaseURL     string // empty for the default OpenAI endpoint
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements Provider against any OpenAI-compatible completion API.
type Client struct {
	client *openai.Client
	config ClientConfig
	logger *slog.Logger
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger.With("component", "llm", "model", cfg.Model),
	}, nil
}

// ChatStream starts a streaming chat completion. A goroutine forwards deltas
// to the stream's token channel and resolves the final text once the provider
// signals end of generation. Context cancellation interrupts forwarding and
// surfaces through Stream.Final.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	chatReq := c.buildRequest(req)
	chatReq.Stream = true

	upstream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}

	s := NewStream()

	go func() {
		defer upstream.Close()

		var sb strings.Builder
		for {
			resp, err := upstream.Recv()
			if errors.Is(err, io.EOF) {
				s.Finish(sb.String(), nil)
				return
			}
			if err != nil {
				c.logger.Error("stream receive failed", "error", err)
				s.Finish("", fmt.Errorf("stream interrupted: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			sb.WriteString(delta)

			if err := s.Emit(ctx, delta); err != nil {
				s.Finish("", err)
				return
			}
		}
	}()

	return s, nil
}

// Complete performs a single-shot completion.
func (c *Client) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	req := c.buildRequest(ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []Message{{Role: RoleUser, Content: prompt}},
	})

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Model returns the model name.
func (c *Client) Model() string {
	return c.config.Model
}

func (c *Client) buildRequest(req ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	if temperature > 0 {
		chatReq.Temperature = float32(temperature)
	}

	return chatReq
}
