package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/hallvoice/internal/observe"
	"github.com/MrWong99/hallvoice/internal/resilience"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

// DefaultTokenTimeout caps a single token endpoint attempt.
const DefaultTokenTimeout = 15 * time.Second

// DefaultTokenEndpoints are tried in order: the conversation token endpoint
// first, then the generic single-use token endpoint.
var DefaultTokenEndpoints = []string{
	"/v1/convai/conversation/token",
	"/v1/single-use-token/realtime_scribe",
}

// TokenResult is a successfully issued token and the endpoint that issued it.
type TokenResult struct {
	Endpoint string
	Data     json.RawMessage
}

type tokenState struct {
	issuer    tts.TokenIssuer
	endpoints []string
}

// TokenIssuer is the conversation token gateway. It is safe for concurrent use.
type TokenIssuer struct {
	state   atomic.Pointer[tokenState]
	timeout time.Duration
	metrics *observe.Metrics
}

// TokenOption configures a [TokenIssuer].
type TokenOption func(*TokenIssuer)

// WithTokenTimeout overrides [DefaultTokenTimeout].
func WithTokenTimeout(d time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTokenMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithTokenMetrics(m *observe.Metrics) TokenOption {
	return func(t *TokenIssuer) {
		if m != nil {
			t.metrics = m
		}
	}
}

// NewTokenIssuer creates a token gateway. A nil issuer makes every request
// fail with a [*ConfigurationError]. Empty endpoints use [DefaultTokenEndpoints].
func NewTokenIssuer(issuer tts.TokenIssuer, endpoints []string, opts ...TokenOption) *TokenIssuer {
	t := &TokenIssuer{timeout: DefaultTokenTimeout}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	t.Update(issuer, endpoints)
	return t
}

// Update atomically replaces the issuer and endpoint list.
func (t *TokenIssuer) Update(issuer tts.TokenIssuer, endpoints []string) {
	eps := dedupe(endpoints)
	if len(eps) == 0 {
		eps = DefaultTokenEndpoints
	}
	t.state.Store(&tokenState{issuer: issuer, endpoints: eps})
}

// Ready reports a [*ConfigurationError] when no issuer is configured.
func (t *TokenIssuer) Ready(context.Context) error {
	if t.state.Load().issuer == nil {
		return &ConfigurationError{Reason: "speech provider credential is not set"}
	}
	return nil
}

// Issue passes body to each token endpoint in order and returns the first
// 2xx answer. Without a credential no endpoint is attempted.
func (t *TokenIssuer) Issue(ctx context.Context, body []byte) (*TokenResult, error) {
	st := t.state.Load()
	if st.issuer == nil {
		return nil, &ConfigurationError{Reason: "speech provider credential is not set"}
	}

	ctx, span := observe.StartSpan(ctx, "gateway.IssueToken")
	defer span.End()

	log := observe.Logger(ctx)
	data, out, err := resilience.Cascade(ctx, st.endpoints,
		func(ctx context.Context, endpoint string) ([]byte, error) {
			return st.issuer.IssueToken(ctx, endpoint, bytes.Clone(body))
		},
		resilience.Options[string]{
			Timeout:  t.timeout,
			Logger:   log,
			Describe: func(ep string) []any { return []any{"endpoint", ep} },
			OnFailure: func(f resilience.Failure[string]) {
				t.metrics.RecordTokenAttempt(ctx, f.Candidate, f.Status)
				t.metrics.RecordProviderError(ctx, "elevenlabs", "token")
			},
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issuance failed")
		if errors.Is(err, resilience.ErrAllFailed) {
			failures := make([]FailureRecord, len(out.Failures))
			for i, f := range out.Failures {
				failures[i] = FailureRecord{Endpoint: f.Candidate, Status: f.Status, Detail: f.Detail}
			}
			return nil, &ExhaustedError{Kind: KindToken, Failures: failures}
		}
		return nil, fmt.Errorf("gateway: issue token: %w", err)
	}

	t.metrics.RecordTokenAttempt(ctx, out.Winner, http.StatusOK)
	span.SetAttributes(attribute.String("endpoint", out.Winner), attribute.Int("attempts", out.Attempts))

	if !json.Valid(data) {
		data, _ = json.Marshal(string(data))
	}
	return &TokenResult{Endpoint: out.Winner, Data: json.RawMessage(data)}, nil
}
