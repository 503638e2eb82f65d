// Package mock provides test doubles for the assistant boundaries.
//
// Every mock records its calls and is safe for concurrent use. Optional Gate
// channels hold a call open until the test sends on (or closes) the gate,
// which lets tests observe the conversation mid-flight.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MrWong99/hallvoice/internal/assistant"
)

// Recognizer returns Texts in order. Once they are used up Listen blocks
// until its context is cancelled, unless Err is set.
type Recognizer struct {
	mu sync.Mutex

	// Texts are the utterances returned by successive calls.
	Texts []string

	// Err is returned once Texts are used up.
	Err error

	calls int
}

// Listen implements assistant.Recognizer.
func (r *Recognizer) Listen(ctx context.Context) (string, error) {
	r.mu.Lock()
	i := r.calls
	r.calls++
	var text string
	have := i < len(r.Texts)
	if have {
		text = r.Texts[i]
	}
	err := r.Err
	r.mu.Unlock()

	switch {
	case have:
		return text, nil
	case err != nil:
		return "", err
	}
	<-ctx.Done()
	return "", ctx.Err()
}

// Calls returns the number of Listen calls.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Classifier answers every message with Intents[message], falling back to
// Intent.
type Classifier struct {
	mu sync.Mutex

	Intent  assistant.Intent
	Intents map[string]assistant.Intent
	Err     error

	messages []string
}

// Classify implements assistant.Classifier.
func (c *Classifier) Classify(_ context.Context, message string) (assistant.Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	if c.Err != nil {
		return assistant.Intent{}, c.Err
	}
	if in, ok := c.Intents[message]; ok {
		return in, nil
	}
	return c.Intent, nil
}

// Messages returns a copy of the classified messages.
func (c *Classifier) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

// Executor answers every intent with Result or Err.
type Executor struct {
	mu sync.Mutex

	Result assistant.ActionResult
	Err    error

	// Gate, if non-nil, holds each call until a value is received.
	Gate chan struct{}

	intents []assistant.Intent
}

// Execute implements assistant.Executor.
func (x *Executor) Execute(ctx context.Context, intent assistant.Intent) (assistant.ActionResult, error) {
	x.mu.Lock()
	x.intents = append(x.intents, intent)
	res, err, gate := x.Result, x.Err, x.Gate
	x.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return assistant.ActionResult{}, ctx.Err()
		}
	}
	return res, err
}

// Intents returns a copy of the executed intents.
func (x *Executor) Intents() []assistant.Intent {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]assistant.Intent, len(x.intents))
	copy(out, x.intents)
	return out
}

// Call records one follow-up.
type Call struct {
	Path    string
	Payload json.RawMessage
}

// Caller records follow-ups and answers with Err.
type Caller struct {
	mu sync.Mutex

	Err error

	calls []Call
}

// Call implements assistant.Caller.
func (c *Caller) Call(_ context.Context, path string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Path: path, Payload: payload})
	return c.Err
}

// Calls returns a copy of the recorded follow-ups.
func (c *Caller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Speaker records utterances. With Err set, Speak fails without starting
// playback, as a failed synthesis would.
type Speaker struct {
	mu sync.Mutex

	Err error

	// Gate, if non-nil, holds each utterance after it started until a value
	// is received.
	Gate chan struct{}

	spoken []assistant.Utterance
	stops  int
}

// Speak implements assistant.Speaker.
func (s *Speaker) Speak(ctx context.Context, u assistant.Utterance, started func()) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, u)
	err, gate := s.Err, s.Gate
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if started != nil {
		started()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop implements assistant.Speaker.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

// Spoken returns a copy of the utterances passed to Speak.
func (s *Speaker) Spoken() []assistant.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assistant.Utterance, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Stops returns the number of Stop calls.
func (s *Speaker) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

var (
	_ assistant.Recognizer = (*Recognizer)(nil)
	_ assistant.Classifier = (*Classifier)(nil)
	_ assistant.Executor   = (*Executor)(nil)
	_ assistant.Caller     = (*Caller)(nil)
	_ assistant.Speaker    = (*Speaker)(nil)
)
