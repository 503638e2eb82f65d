// Package observe carries the telemetry shared by both hallvoice binaries:
// OpenTelemetry instruments for synthesis, tokens and classification, trace
// helpers, context-aware slog loggers and the gateway request middleware.
//
// [InitProvider] bridges metrics to Prometheus for the gateway's /metrics
// route. Code that records metrics takes a [*Metrics]; production passes
// [DefaultMetrics], tests build one with [NewMetrics] on a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hallvoice metrics.
const meterName = "github.com/MrWong99/hallvoice"

// Metrics holds the instruments shared by the gateway and the assistant.
// All fields are safe for concurrent use.
type Metrics struct {
	// TTSDuration is the wall time of a whole synthesis cascade, labelled
	// outcome=ok|exhausted|rejected.
	TTSDuration metric.Float64Histogram

	// LLMDuration is chat classification latency when an LLM backs the
	// classifier, labelled outcome=ok|error.
	LLMDuration metric.Float64Histogram

	// TTSAttempts counts voice/model attempts by upstream status.
	TTSAttempts metric.Int64Counter

	// TokenAttempts counts token endpoint attempts by upstream status.
	TokenAttempts metric.Int64Counter

	// ProviderErrors counts failed provider calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// VoiceFallbacks counts synthesis requests served by a non-primary voice.
	VoiceFallbacks metric.Int64Counter

	// HTTPRequestDuration is gateway request latency by method, route and
	// response status.
	HTTPRequestDuration metric.Float64Histogram
}

// instruments accumulates instrument construction errors so NewMetrics can
// report them together.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) seconds(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("%s: %w", name, err))
	}
	return h
}

func (in *instruments) count(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("%s: %w", name, err))
	}
	return c
}

// NewMetrics creates every instrument on mp. Bucket boundaries for the
// histograms are set by the views [InitProvider] installs.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	met := &Metrics{
		TTSDuration:         in.seconds("hallvoice.tts.duration", "Latency of a speech synthesis request across all attempts."),
		LLMDuration:         in.seconds("hallvoice.llm.duration", "Latency of LLM-backed chat classification."),
		TTSAttempts:         in.count("hallvoice.tts.attempts", "Synthesis attempts by voice, model and upstream status."),
		TokenAttempts:       in.count("hallvoice.token.attempts", "Conversation token attempts by endpoint and upstream status."),
		ProviderErrors:      in.count("hallvoice.provider.errors", "Provider failures by provider and kind."),
		VoiceFallbacks:      in.count("hallvoice.voice.fallbacks", "Synthesis requests satisfied by a fallback voice."),
		HTTPRequestDuration: in.seconds("hallvoice.http.request.duration", "Gateway request latency by method, route and status."),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// statusLabel renders an upstream status for metric attributes. Zero means
// the request never got an HTTP answer.
func statusLabel(status int) string {
	if status == 0 {
		return "network"
	}
	return strconv.Itoa(status)
}

// RecordTTSAttempt records one voice/model attempt. voice and model must come
// from configuration, not from the caller. status is the upstream
// HTTP status, 0 for transport failures.
func (m *Metrics) RecordTTSAttempt(ctx context.Context, voice, model string, status int) {
	m.TTSAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("voice", voice),
			attribute.String("model", model),
			attribute.String("status", statusLabel(status)),
		),
	)
}

// RecordTokenAttempt records one token endpoint attempt.
func (m *Metrics) RecordTokenAttempt(ctx context.Context, endpoint string, status int) {
	m.TokenAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", statusLabel(status)),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordVoiceFallback records a request served by a non-primary voice. mode
// is one of the known conversation modes or a catch-all.
func (m *Metrics) RecordVoiceFallback(ctx context.Context, mode string) {
	m.VoiceFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
