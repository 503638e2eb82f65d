package gateway

import (
	"fmt"

	"github.com/MrWong99/hallvoice/internal/resilience"
)

// ConfigurationError reports that the gateway cannot serve any request
// because the provider credential is missing. Retrying does not help.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "gateway: not configured: " + e.Reason
}

// ValidationError reports a request the caller can correct.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gateway: invalid %s: %s", e.Field, e.Reason)
}

// FailureRecord is one failed upstream attempt as reported to clients.
// Synthesis failures carry VoiceID and ModelID; token failures carry Endpoint.
type FailureRecord struct {
	VoiceID  string `json:"voiceId,omitempty"`
	ModelID  string `json:"modelId,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
}

// Failure kinds carried by [ExhaustedError].
const (
	KindSynthesis = "synthesis"
	KindToken     = "token"
)

// ExhaustedError reports that every candidate was tried and failed. Failures
// holds one record per attempt, in attempt order.
type ExhaustedError struct {
	Kind     string
	Failures []FailureRecord
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gateway: %s exhausted after %d attempts", e.Kind, len(e.Failures))
}

// Unwrap lets callers match the error with errors.Is(err, resilience.ErrAllFailed).
func (e *ExhaustedError) Unwrap() error {
	return resilience.ErrAllFailed
}
