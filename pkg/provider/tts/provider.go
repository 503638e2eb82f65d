// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a third-party speech synthesis service and renders one
// complete utterance per call. Voice and model selection, fallback and
// parameter normalisation are the caller's business (see internal/gateway);
// a provider performs exactly one outbound attempt per call and reports a
// non-2xx answer as a [*StatusError] so callers can record the status.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text with the given voice and model and returns
	// the encoded audio. A non-2xx provider answer is returned as a
	// [*StatusError]; transport failures are returned as-is.
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// TokenIssuer is implemented by providers that can mint short-lived session
// credentials for client-side conversation sessions.
type TokenIssuer interface {
	// IssueToken posts body to the provider endpoint at path and returns the
	// JSON response on 2xx. Non-2xx answers are returned as a [*StatusError].
	IssueToken(ctx context.Context, path string, body []byte) ([]byte, error)
}
