package assistant

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrRecognitionUnavailable is returned by a [Recognizer] that cannot listen
// at all on this device.
var ErrRecognitionUnavailable = errors.New("assistant: speech recognition unavailable")

// Recognizer turns speech into one final utterance.
type Recognizer interface {
	// Listen blocks until one utterance is recognised or ctx is cancelled.
	Listen(ctx context.Context) (string, error)
}

// Classifier reads the intent of a user utterance.
type Classifier interface {
	Classify(ctx context.Context, message string) (Intent, error)
}

// Executor performs an ACTION intent against the portal.
type Executor interface {
	Execute(ctx context.Context, intent Intent) (ActionResult, error)
}

// Caller issues a READY follow-up call.
type Caller interface {
	Call(ctx context.Context, path string, payload json.RawMessage) error
}

// Speaker synthesises and plays one utterance.
type Speaker interface {
	// Speak blocks until playback of u finishes, fails or ctx is cancelled.
	// started is called once when audio begins to play.
	Speak(ctx context.Context, u Utterance, started func()) error

	// Stop interrupts the utterance currently playing, if any.
	Stop()
}
