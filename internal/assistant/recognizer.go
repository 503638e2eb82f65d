package assistant

import (
	"context"
	"strings"
	"sync/atomic"
)

// LineRecognizer treats each line of typed text as one final utterance. It
// stands in for a speech recognizer on terminals: the caller reads input and
// hands lines to [LineRecognizer.Feed].
type LineRecognizer struct {
	lines  chan string
	closed atomic.Bool
	done   chan struct{}
}

var _ Recognizer = (*LineRecognizer)(nil)

// NewLineRecognizer returns a recognizer with no pending input.
func NewLineRecognizer() *LineRecognizer {
	return &LineRecognizer{lines: make(chan string), done: make(chan struct{})}
}

// Feed delivers line to a waiting [LineRecognizer.Listen]. It reports false,
// dropping the line, when nothing is listening.
func (r *LineRecognizer) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	select {
	case r.lines <- line:
		return true
	default:
		return false
	}
}

// Close makes every current and future Listen report
// [ErrRecognitionUnavailable], e.g. once input reached EOF.
func (r *LineRecognizer) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.done)
	}
}

// Listen implements [Recognizer].
func (r *LineRecognizer) Listen(ctx context.Context) (string, error) {
	select {
	case line := <-r.lines:
		return line, nil
	case <-r.done:
		return "", ErrRecognitionUnavailable
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
