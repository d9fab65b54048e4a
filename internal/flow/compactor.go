package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/lexdraft/lexdraft/internal/genai"
	"github.com/lexdraft/lexdraft/internal/models"
)

// Default compaction bounds.
const (
	// DefaultHistoryThreshold is the message count above which compaction runs.
	DefaultHistoryThreshold = 10
	// DefaultKeepRecent is how many trailing messages are kept verbatim.
	DefaultKeepRecent = 4
	// DefaultSummaryCap bounds how many older messages feed the summarization
	// call; anything older is dropped without a summary.
	DefaultSummaryCap = 40

	summaryTemperature = 0.2
	summaryMaxTokens   = 400
)

// Compactor replaces older conversation history with a single condensed
// synthetic system message once the history grows past a threshold.
type Compactor struct {
	client        genai.ClientInterface
	threshold     int
	keepRecent    int
	maxSummarized int
}

// CompactorOption configures a Compactor.
type CompactorOption func(*Compactor)

// WithThreshold sets the history length that triggers compaction.
func WithThreshold(n int) CompactorOption {
	return func(c *Compactor) { c.threshold = n }
}

// WithKeepRecent sets how many trailing messages survive verbatim.
func WithKeepRecent(n int) CompactorOption {
	return func(c *Compactor) { c.keepRecent = n }
}

// WithSummaryCap sets the maximum number of older messages summarized.
func WithSummaryCap(n int) CompactorOption {
	return func(c *Compactor) { c.maxSummarized = n }
}

// NewCompactor creates a compactor with the reference bounds unless options
// override them.
func NewCompactor(client genai.ClientInterface, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		client:        client,
		threshold:     DefaultHistoryThreshold,
		keepRecent:    DefaultKeepRecent,
		maxSummarized: DefaultSummaryCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact returns the history unchanged while it is at or below the
// threshold. Above it, the most recent keepRecent messages are kept verbatim
// and at most maxSummarized of the remaining messages are condensed into one
// system-role summary turn prepended before them. Messages older than the cap
// are dropped silently: bounded information loss in exchange for bounded
// cost. A failed or empty summarization is not fatal, the turn proceeds with
// just the recent messages.
func (c *Compactor) Compact(ctx context.Context, history []models.Turn) []models.Turn {
	if len(history) <= c.threshold {
		return history
	}

	keep := c.keepRecent
	if keep > len(history) {
		keep = len(history)
	}
	recent := history[len(history)-keep:]
	older := history[:len(history)-keep]
	if len(older) == 0 {
		out := make([]models.Turn, len(recent))
		copy(out, recent)
		return out
	}
	if dropped := len(older) - c.maxSummarized; dropped > 0 {
		older = older[dropped:]
		slog.Warn("flow.Compact: dropping messages beyond summarization cap", "dropped", dropped, "cap", c.maxSummarized)
	}

	slog.Debug("flow.Compact: summarizing older history", "total", len(history), "summarized", len(older), "kept", len(recent))

	summary, err := c.summarize(ctx, older)
	if err != nil || strings.TrimSpace(summary) == "" {
		slog.Warn("flow.Compact: summarization unavailable, proceeding with recent messages only", "error", err)
		out := make([]models.Turn, len(recent))
		copy(out, recent)
		return out
	}

	out := make([]models.Turn, 0, len(recent)+1)
	out = append(out, models.Turn{Role: models.RoleSystem, Content: summaryPrefix + summary})
	out = append(out, recent...)
	return out
}

// summarize runs the low-temperature compaction call over a transcript of
// the older messages.
func (c *Compactor) summarize(ctx context.Context, turns []models.Turn) (string, error) {
	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Content)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(summarizationSystemPrompt),
		openai.UserMessage(transcript.String()),
	}
	return c.client.Complete(ctx, messages, genai.CompletionOpts{
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
}
