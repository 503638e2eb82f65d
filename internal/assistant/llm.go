package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hallvoice/internal/observe"
	"github.com/MrWong99/hallvoice/pkg/provider/llm"
)

// DefaultClassifierPrompt instructs the model to answer with one intent
// object.
const DefaultClassifierPrompt = `You are the voice assistant of a hall booking portal.
Answer every user message with exactly one JSON object and nothing else.
For conversation use {"type":"CHAT","message":"<short spoken answer>"}.
When the user wants something done in the portal (check hall status, book or
cancel a hall) use {"type":"ACTION","reply":"<short acknowledgement>","action":"<action name>","payload":{...}}.
Keep spoken text to one or two sentences.`

// LLMClassifier classifies utterances with a language model. Output is
// read with jsonrepair, so prose or code fences around the object are
// tolerated and unreadable output degrades to a CHAT intent.
type LLMClassifier struct {
	provider llm.Provider
	prompt   string
	metrics  *observe.Metrics
	provName string
}

var _ Classifier = (*LLMClassifier)(nil)

// LLMOption configures an [LLMClassifier].
type LLMOption func(*LLMClassifier)

// WithPrompt replaces [DefaultClassifierPrompt].
func WithPrompt(p string) LLMOption {
	return func(c *LLMClassifier) {
		if p != "" {
			c.prompt = p
		}
	}
}

// WithLLMMetrics records classification latency and provider errors on m.
func WithLLMMetrics(m *observe.Metrics, provider string) LLMOption {
	return func(c *LLMClassifier) {
		c.metrics = m
		c.provName = provider
	}
}

// NewLLMClassifier wraps p.
func NewLLMClassifier(p llm.Provider, opts ...LLMOption) *LLMClassifier {
	c := &LLMClassifier{provider: p, prompt: DefaultClassifierPrompt}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify implements [Classifier].
func (c *LLMClassifier) Classify(ctx context.Context, message string) (Intent, error) {
	start := time.Now()
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: c.prompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: message}},
		Temperature:  0.2,
		MaxTokens:    400,
	})
	if c.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			c.metrics.RecordProviderError(ctx, c.provName, "llm")
		}
		c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("outcome", outcome)))
	}
	if err != nil {
		return Intent{}, fmt.Errorf("assistant: classify: %w", err)
	}
	if resp == nil {
		return ParseIntent(nil), nil
	}
	if resp.Truncated() {
		slog.Warn("classifier reply hit the token limit", "provider", c.provName, "chars", len(resp.Content))
	}
	return ParseIntent(resp.Content), nil
}
