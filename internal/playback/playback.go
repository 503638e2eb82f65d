// Package playback owns the lifecycle of spoken audio on the client.
//
// A [Manager] holds at most one live [Session]. Starting a new session first
// tears the previous one down synchronously, and every session reports its
// outcome exactly once, however many terminal events its [Element] emits.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrInterrupted is reported for a session torn down by [Manager.Stop] or by
// a newer [Manager.Play].
var ErrInterrupted = errors.New("playback: interrupted")

// Events receives terminal notifications from an [Element]. Implementations
// may be called from any goroutine and more than once.
type Events interface {
	// Ended reports that the track played to its end.
	Ended()
	// Paused reports a pause; atEnd is true when the playhead is at the end
	// of the track.
	Paused(atEnd bool)
	// Error reports a playback failure.
	Error(err error)
}

// Element is one playable audio resource.
type Element interface {
	// Start begins playback and delivers terminal events to ev. Events must
	// not be delivered before Start returns.
	Start(ev Events) error
	// Pause halts playback. It must be safe to call after playback ended.
	Pause()
	// Close releases the resource. It must not wait for pending events.
	Close() error
}

// Backend turns encoded audio into an [Element].
type Backend interface {
	Open(audio []byte) (Element, error)
}

// Manager serialises playback onto a single live session.
type Manager struct {
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex // serialises Play and Stop
	current atomic.Pointer[Session]
	nextID  atomic.Uint64
}

// NewManager creates a manager that opens audio with backend.
func NewManager(backend Backend, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{backend: backend, log: log}
}

// Play tears down any live session, then starts audio in a new one. done,
// if non-nil, is called exactly once with nil on completion, the playback
// error, or [ErrInterrupted]. If the audio cannot be opened or started Play
// returns the error and done is not called.
func (m *Manager) Play(audio []byte, done func(error)) (*Session, error) {
	m.mu.Lock()
	prev := m.interruptLocked()

	el, err := m.backend.Open(audio)
	if err != nil {
		m.mu.Unlock()
		prev.report()
		return nil, fmt.Errorf("playback: open: %w", err)
	}

	s := &Session{id: m.nextID.Add(1), m: m, el: el, done: done, finished: make(chan struct{})}
	m.current.Store(s)

	if err := el.Start(s); err != nil {
		s.teardown(err)
		m.mu.Unlock()
		prev.report()
		return nil, fmt.Errorf("playback: start: %w", err)
	}
	m.mu.Unlock()

	prev.report()
	m.log.Debug("playback started", "session", s.id, "bytes", len(audio))
	return s, nil
}

// Stop tears down the live session, if any. Calling Stop with nothing
// playing is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	prev := m.interruptLocked()
	m.mu.Unlock()
	prev.report()
}

// Active returns the live session or nil.
func (m *Manager) Active() *Session {
	return m.current.Load()
}

// interruptLocked tears down the live session and returns it if this call
// finished it. The caller reports it after releasing m.mu so completion
// callbacks may call back into the manager.
func (m *Manager) interruptLocked() *Session {
	s := m.current.Load()
	if s == nil || !s.teardown(ErrInterrupted) {
		return nil
	}
	m.log.Debug("playback interrupted", "session", s.id)
	return s
}

// Session is one playback of one audio buffer.
type Session struct {
	id   uint64
	m    *Manager
	el   Element
	done func(error)

	ended    atomic.Bool
	err      error
	finished chan struct{}
}

var _ Events = (*Session)(nil)

// ID identifies the session within its manager.
func (s *Session) ID() uint64 { return s.id }

// Done is closed after the session has reported its outcome.
func (s *Session) Done() <-chan struct{} { return s.finished }

// Err returns the outcome once [Session.Done] is closed.
func (s *Session) Err() error {
	<-s.finished
	return s.err
}

// Stop tears the session down with [ErrInterrupted] if it is still live.
// Unlike [Manager.Stop] it never touches a newer session.
func (s *Session) Stop() { s.complete(ErrInterrupted) }

// Ended implements [Events].
func (s *Session) Ended() { s.complete(nil) }

// Paused implements [Events]. A pause before the end is not terminal.
func (s *Session) Paused(atEnd bool) {
	if atEnd {
		s.complete(nil)
	}
}

// Error implements [Events].
func (s *Session) Error(err error) {
	if err == nil {
		err = errors.New("playback: unknown error")
	}
	s.complete(err)
}

func (s *Session) complete(err error) {
	if s.teardown(err) {
		s.report()
	}
}

// teardown stops and releases the element exactly once and records err as
// the outcome. It reports whether this call performed the teardown.
func (s *Session) teardown(err error) bool {
	if !s.ended.CompareAndSwap(false, true) {
		return false
	}
	s.err = err
	s.m.current.CompareAndSwap(s, nil)
	s.el.Pause()
	if cerr := s.el.Close(); cerr != nil {
		s.m.log.Warn("playback: release failed", "session", s.id, "err", cerr)
	}
	return true
}

// report signals the outcome. It is called once by whoever won teardown.
func (s *Session) report() {
	if s == nil {
		return
	}
	close(s.finished)
	if s.done != nil {
		s.done(s.err)
	}
}
