package llm

import (
	"context"
	"log/slog"
)

// FallbackSummary is returned when summary generation fails. Summarization is
// best-effort; ingestion proceeds with the placeholder rather than aborting.
const FallbackSummary = "Summary unavailable."

const summarizerSystemPrompt = "You are a senior academic researcher. Synthesize technical papers into structured insights."

const summarizerPromptHeader = `Analyze the provided research paper text and generate a structured summary in Markdown.

Output strictly in this format:
**Core Problem:** [What specific gap is this paper trying to fill?]
**Methodology:** [Technical approach, architecture, or algorithms used]
**Key Results:** [Specific metrics, benchmarks, or discoveries]
**Implications:** [Why does this matter?]

TEXT TO ANALYZE:
`

// Summarizer produces a structured synopsis of a paper's extracted text.
type Summarizer struct {
	provider Provider
	maxChars int
	logger   *slog.Logger
}

// NewSummarizer creates a new Summarizer. maxChars bounds how much of the
// paper is sent to the model; the leading portion usually covers abstract,
// introduction, methodology and early results.
func NewSummarizer(provider Provider, maxChars int, logger *slog.Logger) *Summarizer {
	if maxChars <= 0 {
		maxChars = 50000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		provider: provider,
		maxChars: maxChars,
		logger:   logger.With("component", "summarizer"),
	}
}

// Summarize returns a Markdown synopsis of fullText. It never fails: any
// provider error degrades to FallbackSummary.
func (s *Summarizer) Summarize(ctx context.Context, fullText string) string {
	text := truncateRunes(fullText, s.maxChars)

	summary, err := s.provider.Complete(ctx, summarizerSystemPrompt, summarizerPromptHeader+text)
	if err != nil {
		s.logger.Warn("summary generation failed, using fallback", "error", err)
		return FallbackSummary
	}
	if summary == "" {
		return FallbackSummary
	}
	return summary
}

// truncateRunes cuts s after at most n runes, never splitting a multi-byte
// sequence.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
