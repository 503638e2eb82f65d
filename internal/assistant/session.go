package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/hallvoice/internal/playback"
)

// DefaultRequestTimeout bounds each classifier, executor and follow-up call.
const DefaultRequestTimeout = 20 * time.Second

var errNotConfigured = errors.New("assistant: boundary not configured")

// Deps are the boundaries a [Session] drives. A nil Recognizer makes every
// listen attempt report [ErrRecognitionUnavailable]; any other nil boundary
// fails its calls.
type Deps struct {
	Recognizer Recognizer
	Classifier Classifier
	Executor   Executor
	Caller     Caller
	Speaker    Speaker
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithLogger sets the session logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRequestTimeout bounds every classifier, executor and follow-up call.
// Non-positive values are ignored.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTurnHandler registers fn to receive every turn as it is appended. A
// call with a zero Turn signals that history was cleared. fn runs on the
// session goroutine and must not block.
func WithTurnHandler(fn func(Turn)) SessionOption {
	return func(s *Session) { s.onTurn = fn }
}

// WithPhaseHandler registers fn to receive phase changes. fn runs on the
// session goroutine and must not block.
func WithPhaseHandler(fn func(Phase)) SessionOption {
	return func(s *Session) { s.onPhase = fn }
}

// Session runs one conversation. Events are applied by a single goroutine
// started with [Session.Run]; every boundary call runs on its own goroutine
// and reports back through the event channel.
type Session struct {
	id      string
	machine Machine
	deps    Deps
	log     *slog.Logger
	timeout time.Duration
	onTurn  func(Turn)
	onPhase func(Phase)

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	state State

	// Owned by the Run goroutine.
	parent       context.Context
	genCtx       context.Context
	genCancel    context.CancelFunc
	listenCancel context.CancelFunc
}

// NewSession creates a session in [Idle].
func NewSession(machine Machine, deps Deps, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.NewString(),
		machine: machine,
		deps:    deps,
		log:     slog.Default(),
		timeout: DefaultRequestTimeout,
		events:  make(chan Event, 32),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session", s.id)
	return s
}

// ID returns the random session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnterLive switches hands-free live mode on.
func (s *Session) EnterLive() bool { return s.Post(LiveEntered{}) }

// ToggleMic starts or stops manual listening outside live mode.
func (s *Session) ToggleMic() bool { return s.Post(MicToggled{}) }

// ExitMode leaves live mode and abandons all in-flight work.
func (s *Session) ExitMode() bool { return s.Post(ModeExited{}) }

// Post queues ev for the session goroutine. It reports false once the
// session has stopped.
func (s *Session) Post(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Run applies events until ctx is cancelled. It stops playback, cancels all
// in-flight calls and waits for their goroutines before returning. Run must
// be called at most once.
func (s *Session) Run(ctx context.Context) error {
	s.parent = ctx
	s.genCtx, s.genCancel = context.WithCancel(ctx)
	defer func() {
		s.genCancel()
		if s.deps.Speaker != nil {
			s.deps.Speaker.Stop()
		}
		close(s.done)
		s.wg.Wait()
	}()

	s.log.Debug("assistant: session started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("assistant: session stopped")
			return nil
		case ev := <-s.events:
			s.apply(ev)
		}
	}
}

func (s *Session) apply(ev Event) {
	prev := s.state
	next, effects := s.machine.Reduce(prev, ev)

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	if s.onTurn != nil {
		from := len(prev.Turns)
		if next.epoch != prev.epoch {
			s.onTurn(Turn{})
			from = 0
		}
		for _, t := range next.Turns[min(from, len(next.Turns)):] {
			s.onTurn(t)
		}
	}
	if next.Phase != prev.Phase {
		s.log.Debug("assistant: phase changed", "from", prev.Phase, "to", next.Phase)
		if s.onPhase != nil {
			s.onPhase(next.Phase)
		}
	}
	for _, e := range effects {
		s.perform(e)
	}
}

func (s *Session) perform(e Effect) {
	switch e := e.(type) {
	case Cancel:
		s.genCancel()
		s.genCtx, s.genCancel = context.WithCancel(s.parent)

	case StopListening:
		if s.listenCancel != nil {
			s.listenCancel()
			s.listenCancel = nil
		}

	case StopSpeaking:
		if s.deps.Speaker != nil {
			s.deps.Speaker.Stop()
		}

	case StartListening:
		ctx, cancel := context.WithCancel(s.genCtx)
		s.listenCancel = cancel
		s.spawn(func() {
			defer cancel()
			if s.deps.Recognizer == nil {
				s.Post(RecognizerUnavailable{Gen: e.Gen})
				return
			}
			text, err := s.deps.Recognizer.Listen(ctx)
			switch {
			case err == nil:
				s.Post(Heard{Gen: e.Gen, Text: text})
			case errors.Is(err, ErrRecognitionUnavailable):
				s.Post(RecognizerUnavailable{Gen: e.Gen})
			case ctx.Err() != nil:
			default:
				s.log.Warn("assistant: recognition failed", "err", err)
				s.Post(RecognitionFailed{Gen: e.Gen, Err: err})
			}
		})

	case Classify:
		ctx, cancel := context.WithTimeout(s.genCtx, s.timeout)
		s.spawn(func() {
			defer cancel()
			var intent Intent
			err := errNotConfigured
			if s.deps.Classifier != nil {
				intent, err = s.deps.Classifier.Classify(ctx, e.Text)
			}
			if err != nil {
				s.log.Warn("assistant: classification failed", "err", err)
				s.Post(ReplyFailed{Gen: e.Gen, Err: err})
				return
			}
			s.log.Debug("assistant: classified", "type", intent.Type, "action", intent.Action)
			s.Post(ReplyReady{Gen: e.Gen, Intent: intent})
		})

	case Speak:
		ctx := s.genCtx
		s.spawn(func() {
			err := errNotConfigured
			if s.deps.Speaker != nil {
				err = s.deps.Speaker.Speak(ctx, e.Utterance, func() {
					s.Post(SpeechStarted{Gen: e.Gen})
				})
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, playback.ErrInterrupted) {
				err = nil
			}
			if err != nil {
				s.log.Warn("assistant: speech failed", "mode", e.Utterance.Mode, "err", err)
			}
			s.Post(AudioDone{Gen: e.Gen, Err: err})
		})

	case Execute:
		ctx, cancel := context.WithTimeout(s.genCtx, s.timeout)
		s.spawn(func() {
			defer cancel()
			var res ActionResult
			err := errNotConfigured
			if s.deps.Executor != nil {
				res, err = s.deps.Executor.Execute(ctx, e.Intent)
			}
			if err != nil {
				s.log.Warn("assistant: action failed", "action", e.Intent.Action, "err", err)
				s.Post(ActionFailed{Gen: e.Gen, Err: err})
				return
			}
			s.log.Debug("assistant: action resolved", "action", e.Intent.Action, "status", res.Status)
			s.Post(ActionResolved{Gen: e.Gen, Result: res})
		})

	case FollowUp:
		ctx, cancel := context.WithTimeout(s.genCtx, s.timeout)
		s.spawn(func() {
			defer cancel()
			err := errNotConfigured
			if s.deps.Caller != nil {
				err = s.deps.Caller.Call(ctx, e.Call, e.Payload)
			}
			if err != nil {
				s.log.Warn("assistant: follow-up failed", "call", e.Call, "err", err)
			}
			s.Post(FollowUpDone{Gen: e.Gen, Err: err})
		})
	}
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
