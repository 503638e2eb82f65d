// Package gateway implements the server-side speech gateways: the synthesis
// gateway that walks an ordered voice × model candidate list until the
// provider renders the text, and the conversation token gateway that walks
// an ordered list of token endpoints.
//
// Both gateways hold no per-request state between calls. Their provider and
// profile are read from an immutable snapshot swapped atomically on reload.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hallvoice/internal/observe"
	"github.com/MrWong99/hallvoice/internal/resilience"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

const (
	// MaxTextRunes is the longest text sent to the provider. Longer input is
	// truncated, never rejected.
	MaxTextRunes = 5000

	// DefaultSynthesisTimeout caps a single voice/model attempt.
	DefaultSynthesisTimeout = 30 * time.Second
)

// SynthesisRequest is one call to [Synthesizer.Synthesize].
type SynthesisRequest struct {
	Text     string
	Mode     string
	ModelID  string
	Language string

	// VoiceSettings overrides the mode defaults field by field.
	VoiceSettings *SettingsOverride

	// OutputFormat must start with "mp3_" or "pcm_" when set.
	OutputFormat string
}

// SynthesisResult is the rendered audio plus which candidate produced it.
type SynthesisResult struct {
	Audio       []byte
	ContentType string
	VoiceID     string
	ModelID     string

	// PrimaryVoice is false when a fallback voice satisfied the request.
	PrimaryVoice bool

	// Attempts counts every candidate tried, including the winner.
	Attempts int
}

// synthCandidate is one (voice, model) pair.
type synthCandidate struct {
	voice string
	model string
}

type synthState struct {
	provider tts.Provider
	profile  Profile
}

// Synthesizer is the speech synthesis gateway. It is safe for concurrent use.
type Synthesizer struct {
	state   atomic.Pointer[synthState]
	timeout time.Duration
	metrics *observe.Metrics
}

// SynthOption configures a [Synthesizer].
type SynthOption func(*Synthesizer)

// WithAttemptTimeout overrides [DefaultSynthesisTimeout].
func WithAttemptTimeout(d time.Duration) SynthOption {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) SynthOption {
	return func(s *Synthesizer) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSynthesizer creates a gateway around provider. A nil provider is valid:
// every request then fails with a [*ConfigurationError].
func NewSynthesizer(provider tts.Provider, profile Profile, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{timeout: DefaultSynthesisTimeout}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.Update(provider, profile)
	return s
}

// Update atomically replaces the provider and profile. In-flight requests
// finish against the snapshot they started with.
func (s *Synthesizer) Update(provider tts.Provider, profile Profile) {
	s.state.Store(&synthState{provider: provider, profile: profile.Normalized()})
}

// Profile returns the profile currently in effect.
func (s *Synthesizer) Profile() Profile {
	return s.state.Load().profile
}

// Ready reports a [*ConfigurationError] when no provider is configured.
func (s *Synthesizer) Ready(context.Context) error {
	if s.state.Load().provider == nil {
		return &ConfigurationError{Reason: "speech provider credential is not set"}
	}
	return nil
}

// Synthesize renders req.Text, trying each voice × model candidate in order
// until one succeeds. On exhaustion it returns an [*ExhaustedError] holding
// one failure per candidate.
func (s *Synthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	st := s.state.Load()
	start := time.Now()

	ctx, span := observe.StartSpan(ctx, "gateway.Synthesize")
	defer span.End()

	res, err := s.synthesize(ctx, st, req)

	outcome := "ok"
	var exhausted *ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		outcome = "exhausted"
	case err != nil:
		outcome = "rejected"
	}
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("voice", res.VoiceID),
		attribute.String("model", res.ModelID),
		attribute.Int("attempts", res.Attempts),
	)
	return res, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, st *synthState, req SynthesisRequest) (*SynthesisResult, error) {
	if st.provider == nil {
		return nil, &ConfigurationError{Reason: "speech provider credential is not set"}
	}

	immersive := IsImmersive(req.Mode, req.Text)
	text := truncateRunes(strings.TrimSpace(stripMarker(req.Text)), MaxTextRunes)
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	switch language {
	case "", LanguageAuto, LanguageEnglish, LanguageHindi:
	default:
		return nil, &ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported value %q", req.Language)}
	}

	format := req.OutputFormat
	if format == "" {
		format = st.profile.OutputFormat
	} else if !strings.HasPrefix(format, "mp3_") && !strings.HasPrefix(format, "pcm_") {
		return nil, &ValidationError{Field: "output_format", Reason: fmt.Sprintf("unsupported value %q", format)}
	}

	voices := VoiceCandidates(st.profile, immersive)
	models := ModelCandidates(st.profile, req.ModelID, immersive, PrefersMultilingual(language, text))
	candidates := make([]synthCandidate, 0, len(voices)*len(models))
	for _, v := range voices {
		for _, m := range models {
			candidates = append(candidates, synthCandidate{voice: v, model: m})
		}
	}
	base := ResolveSettings(req.VoiceSettings, immersive)

	log := observe.Logger(ctx)
	log.Debug("synthesis candidates",
		"immersive", immersive, "voices", voices, "models", models, "chars", utf8.RuneCountInString(text))

	audio, out, err := resilience.Cascade(ctx, candidates,
		func(ctx context.Context, c synthCandidate) (*tts.Audio, error) {
			a, err := st.provider.Synthesize(ctx, tts.Request{
				Text:         text,
				VoiceID:      c.voice,
				ModelID:      c.model,
				OutputFormat: format,
				Settings:     ForModel(base, c.model),
			})
			if err == nil && a == nil {
				err = errors.New("provider returned no audio")
			}
			return a, err
		},
		resilience.Options[synthCandidate]{
			Timeout:  s.timeout,
			Logger:   log,
			Describe: func(c synthCandidate) []any { return []any{"voice", c.voice, "model", c.model} },
			OnFailure: func(f resilience.Failure[synthCandidate]) {
				s.metrics.RecordTTSAttempt(ctx, f.Candidate.voice, modelLabel(st.profile, f.Candidate.model), f.Status)
				s.metrics.RecordProviderError(ctx, "elevenlabs", "tts")
			},
		})
	if err != nil {
		if errors.Is(err, resilience.ErrAllFailed) {
			return nil, &ExhaustedError{Kind: KindSynthesis, Failures: synthFailures(out.Failures)}
		}
		return nil, fmt.Errorf("gateway: synthesize: %w", err)
	}

	s.metrics.RecordTTSAttempt(ctx, out.Winner.voice, modelLabel(st.profile, out.Winner.model), http.StatusOK)
	primary := out.Winner.voice == voices[0]
	if !primary {
		s.metrics.RecordVoiceFallback(ctx, modeLabel(req.Mode))
	}
	return &SynthesisResult{
		Audio:        audio.Data,
		ContentType:  audio.ContentType,
		VoiceID:      out.Winner.voice,
		ModelID:      out.Winner.model,
		PrimaryVoice: primary,
		Attempts:     out.Attempts,
	}, nil
}

// Metric label values for caller-chosen modes and models, which would
// otherwise make label cardinality unbounded.
const (
	labelOtherMode      = "other"
	labelRequestedModel = "requested"
)

func modeLabel(mode string) string {
	switch mode {
	case ModeLiveChat, ModeImmersiveIntro, ModeDeepDive:
		return mode
	}
	return labelOtherMode
}

// modelLabel keeps configured model IDs and folds anything else a caller
// asked for into one label.
func modelLabel(p Profile, model string) string {
	switch model {
	case p.LiveModel, p.ImmersiveModel, p.MultilingualModel:
		return model
	}
	if slices.Contains(p.FallbackModels, model) {
		return model
	}
	return labelRequestedModel
}

func synthFailures(in []resilience.Failure[synthCandidate]) []FailureRecord {
	out := make([]FailureRecord, len(in))
	for i, f := range in {
		out[i] = FailureRecord{
			VoiceID: f.Candidate.voice,
			ModelID: f.Candidate.model,
			Status:  f.Status,
			Detail:  f.Detail,
		}
	}
	return out
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
