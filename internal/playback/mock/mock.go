// Package mock provides a scriptable playback.Backend for tests.
//
// Elements never finish on their own: tests drive them with
// [Element.FinishEnded], [Element.FinishPausedAtEnd] and [Element.Fail].
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/hallvoice/internal/playback"
)

// Backend is a mock implementation of playback.Backend.
type Backend struct {
	mu sync.Mutex

	// OpenErr, if set, is returned by Open.
	OpenErr error

	// StartErr, if set, is returned by every element's Start.
	StartErr error

	// Opened records every element in open order.
	Opened []*Element

	// OnStart, if set, is called after an element starts.
	OnStart func(*Element)
}

var _ playback.Backend = (*Backend)(nil)

// Open records and returns a new [Element].
func (b *Backend) Open(audio []byte) (playback.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	el := &Element{Audio: append([]byte(nil), audio...), startErr: b.StartErr, onStart: b.OnStart}
	b.Opened = append(b.Opened, el)
	return el, nil
}

// Elements returns a snapshot of opened elements.
func (b *Backend) Elements() []*Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Element(nil), b.Opened...)
}

// Last returns the most recently opened element or nil.
func (b *Backend) Last() *Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Opened) == 0 {
		return nil
	}
	return b.Opened[len(b.Opened)-1]
}

// Element is a mock implementation of playback.Element.
type Element struct {
	Audio []byte

	mu       sync.Mutex
	ev       playback.Events
	started  bool
	pauses   int
	closes   int
	startErr error
	onStart  func(*Element)
}

// Start records the event sink.
func (e *Element) Start(ev playback.Events) error {
	e.mu.Lock()
	if e.startErr != nil {
		e.mu.Unlock()
		return e.startErr
	}
	e.ev = ev
	e.started = true
	onStart := e.onStart
	e.mu.Unlock()
	if onStart != nil {
		go onStart(e)
	}
	return nil
}

// Pause counts the call.
func (e *Element) Pause() {
	e.mu.Lock()
	e.pauses++
	e.mu.Unlock()
}

// Close counts the call.
func (e *Element) Close() error {
	e.mu.Lock()
	e.closes++
	e.mu.Unlock()
	return nil
}

// Started reports whether Start succeeded.
func (e *Element) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Closes returns how many times Close was called.
func (e *Element) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Pauses returns how many times Pause was called.
func (e *Element) Pauses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauses
}

func (e *Element) events() playback.Events {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ev
}

// FinishEnded delivers Ended.
func (e *Element) FinishEnded() {
	if ev := e.events(); ev != nil {
		ev.Ended()
	}
}

// FinishPausedAtEnd delivers Paused(true).
func (e *Element) FinishPausedAtEnd() {
	if ev := e.events(); ev != nil {
		ev.Paused(true)
	}
}

// PauseMidway delivers Paused(false).
func (e *Element) PauseMidway() {
	if ev := e.events(); ev != nil {
		ev.Paused(false)
	}
}

// Fail delivers Error(err). A nil err becomes a generic failure.
func (e *Element) Fail(err error) {
	if err == nil {
		err = errors.New("mock playback failure")
	}
	if ev := e.events(); ev != nil {
		ev.Error(err)
	}
}
