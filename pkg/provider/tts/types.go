package tts

import (
	"fmt"
	"net/http"
)

// VoiceSettings mirrors the provider voice_settings object. All float fields
// are in the range [0, 1].
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Request is a single synthesis attempt against one voice and one model.
type Request struct {
	// Text is the utterance to render.
	Text string

	// VoiceID is the provider-specific voice identifier.
	VoiceID string

	// ModelID is the provider-specific model identifier.
	ModelID string

	// OutputFormat selects the audio encoding (e.g. "mp3_44100_128").
	// Empty means the provider default.
	OutputFormat string

	// Settings are sent verbatim; callers normalise them per model.
	Settings VoiceSettings
}

// Audio is a rendered utterance.
type Audio struct {
	Data        []byte
	ContentType string
}

// StatusError reports a non-2xx answer from a provider.
type StatusError struct {
	// StatusCode is the HTTP status returned by the provider.
	StatusCode int

	// Detail is the provider's error message, or the raw body when no
	// message could be extracted.
	Detail string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
}

// HTTPStatus returns the provider status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// ErrorDetail returns the provider message without the status prefix.
func (e *StatusError) ErrorDetail() string { return e.Detail }
