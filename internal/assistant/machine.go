// Package assistant is the client-side conversational orchestrator.
//
// The conversation is modelled as a pure state machine: [Machine.Reduce]
// folds an [Event] into the current [State] and returns the [Effect]s the
// caller must perform. [Session] runs the machine on a single goroutine,
// performs effects against the boundary interfaces ([Recognizer],
// [Classifier], [Executor], [Caller], [Speaker]) and posts their results back
// as events. Every asynchronous result carries the generation that issued it;
// results from an older generation are dropped.
package assistant

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/MrWong99/hallvoice/internal/gateway"
)

// Phase is the externally visible conversation state.
type Phase int

const (
	Idle Phase = iota
	Listening
	Thinking
	SpeakingAI
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case SpeakingAI:
		return "speaking"
	default:
		return "unknown"
	}
}

// SpeechMode selects the gateway voice profile for an utterance.
type SpeechMode string

const (
	SpeechLive  SpeechMode = gateway.ModeLiveChat
	SpeechIntro SpeechMode = gateway.ModeImmersiveIntro
)

// Utterance is one piece of text queued for speech.
type Utterance struct {
	Text string
	Mode SpeechMode
}

// State is the complete machine state. It is a value: Reduce never mutates
// the slices of the state it was given.
type State struct {
	Phase Phase
	// Live is set while hands-free live mode is on. Outside live mode the mic
	// is toggled manually and the machine settles in Idle after each turn.
	Live bool
	// Gen is bumped whenever in-flight work must be abandoned.
	Gen   uint64
	Turns []Turn

	// epoch changes whenever Turns is discarded.
	epoch    uint64
	speaking bool
	queue    []Utterance
	// pending is an ACTION whose reply has been queued but not yet started.
	pending *Intent
	// inflight counts executor and follow-up calls not yet resolved.
	inflight int
}

// Speaking reports whether an utterance is currently being played.
func (s State) Speaking() bool { return s.speaking }

// Queued returns the number of utterances waiting behind the current one.
func (s State) Queued() int { return len(s.queue) }

// InFlight returns the number of unresolved executor and follow-up calls.
func (s State) InFlight() int { return s.inflight }

// Event is an input to [Machine.Reduce].
type Event interface{ event() }

type (
	// LiveEntered switches hands-free live mode on.
	LiveEntered struct{}
	// MicToggled flips the manual mic outside live mode.
	MicToggled struct{}
	// ModeExited leaves live mode, discarding history and in-flight work.
	ModeExited struct{}

	RecognizerUnavailable struct{ Gen uint64 }
	Heard                 struct {
		Gen  uint64
		Text string
	}
	RecognitionFailed struct {
		Gen uint64
		Err error
	}
	ReplyReady struct {
		Gen    uint64
		Intent Intent
	}
	ReplyFailed struct {
		Gen uint64
		Err error
	}
	SpeechStarted struct{ Gen uint64 }
	// AudioDone ends the current utterance. Err is non-nil when synthesis
	// or playback failed.
	AudioDone struct {
		Gen uint64
		Err error
	}
	ActionResolved struct {
		Gen    uint64
		Result ActionResult
	}
	ActionFailed struct {
		Gen uint64
		Err error
	}
	FollowUpDone struct {
		Gen uint64
		Err error
	}
)

func (LiveEntered) event()           {}
func (MicToggled) event()            {}
func (ModeExited) event()            {}
func (RecognizerUnavailable) event() {}
func (Heard) event()                 {}
func (RecognitionFailed) event()     {}
func (ReplyReady) event()            {}
func (ReplyFailed) event()           {}
func (SpeechStarted) event()         {}
func (AudioDone) event()             {}
func (ActionResolved) event()        {}
func (ActionFailed) event()          {}
func (FollowUpDone) event()          {}

// Effect is work requested by [Machine.Reduce].
type Effect interface{ effect() }

type (
	StartListening struct{ Gen uint64 }
	StopListening  struct{}
	Classify       struct {
		Gen  uint64
		Text string
	}
	Speak struct {
		Gen       uint64
		Utterance Utterance
	}
	StopSpeaking struct{}
	Execute      struct {
		Gen    uint64
		Intent Intent
	}
	FollowUp struct {
		Gen     uint64
		Call    string
		Payload json.RawMessage
	}
	// Cancel abandons every in-flight call of older generations.
	Cancel struct{}
)

func (StartListening) effect() {}
func (StopListening) effect()  {}
func (Classify) effect()       {}
func (Speak) effect()          {}
func (StopSpeaking) effect()   {}
func (Execute) effect()        {}
func (FollowUp) effect()       {}
func (Cancel) effect()         {}

// Machine holds the immutable rules the reducer applies.
type Machine struct {
	// Intro is spoken with [SpeechIntro] when live mode is entered. Empty
	// skips the introduction.
	Intro string
	// AllowedCalls lists the portal paths a READY result may trigger.
	AllowedCalls []string
}

// Allowed reports whether call is on the follow-up allow-list.
func (m Machine) Allowed(call string) bool {
	call = strings.TrimSpace(call)
	return call != "" && slices.Contains(m.AllowedCalls, call)
}

// Reduce applies ev to s. Events from a stale generation and events that do
// not apply to the current phase leave the state unchanged and yield no
// effects.
func (m Machine) Reduce(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case LiveEntered:
		if s.Live {
			return s, nil
		}
		s = reset(s)
		s.Live = true
		effects := []Effect{Cancel{}, StopListening{}, StopSpeaking{}}
		if strings.TrimSpace(m.Intro) == "" {
			s.Phase = Listening
			return s, append(effects, StartListening{Gen: s.Gen})
		}
		s.Turns = appendTurn(s.Turns, Turn{Role: RoleAI, Text: m.Intro})
		return say(s, Utterance{Text: m.Intro, Mode: SpeechIntro}, effects)

	case ModeExited:
		if !s.Live && s.Phase == Idle && s.idle() {
			return s, nil
		}
		s = reset(s)
		return s, []Effect{Cancel{}, StopListening{}, StopSpeaking{}}

	case MicToggled:
		if s.Live {
			return s, nil
		}
		switch s.Phase {
		case Idle:
			s.Phase = Listening
			return s, []Effect{StartListening{Gen: s.Gen}}
		case Listening:
			s.Gen++
			s.Phase = Idle
			return s, []Effect{StopListening{}}
		}
		return s, nil

	case RecognizerUnavailable:
		if ev.Gen != s.Gen || s.Phase != Listening {
			return s, nil
		}
		s.Gen++
		s.Phase = Idle
		s.Live = false
		s.Turns = appendTurn(s.Turns, Turn{Role: RoleAI, Text: MsgRecognizerUnavailable})
		return s, nil

	case RecognitionFailed:
		if ev.Gen != s.Gen || s.Phase != Listening {
			return s, nil
		}
		s.Gen++
		s.Phase = Idle
		s.Live = false
		s.Turns = appendTurn(s.Turns, Turn{Role: RoleAI, Text: MsgRecognitionFailed})
		return s, nil

	case Heard:
		if ev.Gen != s.Gen || s.Phase != Listening {
			return s, nil
		}
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return settle(s, nil)
		}
		s.Phase = Thinking
		s.Turns = appendTurn(s.Turns, Turn{Role: RoleUser, Text: text})
		return s, []Effect{Classify{Gen: s.Gen, Text: text}}

	case ReplyReady:
		if ev.Gen != s.Gen || s.Phase != Thinking {
			return s, nil
		}
		intent := normalizeIntent(ev.Intent)
		text := intent.Speech()
		s.Turns = appendTurn(s.Turns, Turn{Role: RoleAI, Text: text})
		if intent.Type == IntentAction {
			s.pending = &intent
		}
		return say(s, Utterance{Text: text, Mode: SpeechLive}, nil)

	case ReplyFailed:
		if ev.Gen != s.Gen || s.Phase != Thinking {
			return s, nil
		}
		return m.announce(s, MsgTrouble, nil)

	case SpeechStarted:
		if ev.Gen != s.Gen || !s.speaking || s.pending == nil {
			return s, nil
		}
		return submit(s, nil)

	case AudioDone:
		if ev.Gen != s.Gen || !s.speaking {
			return s, nil
		}
		s.speaking = false
		var effects []Effect
		if ev.Err != nil {
			s.Turns = appendTurn(s.Turns, Turn{Role: RoleAI, Text: MsgSpeechUnavailable})
		}
		if s.pending != nil {
			s, effects = submit(s, effects)
		}
		if len(s.queue) > 0 {
			next := s.queue[0]
			s.queue = slices.Clone(s.queue[1:])
			return say(s, next, effects)
		}
		return settle(s, effects)

	case ActionResolved:
		if ev.Gen != s.Gen || s.inflight == 0 {
			return s, nil
		}
		s.inflight--
		return m.resolve(s, ev.Result)

	case ActionFailed:
		if ev.Gen != s.Gen || s.inflight == 0 {
			return s, nil
		}
		s.inflight--
		return m.announce(s, MsgTrouble, nil)

	case FollowUpDone:
		if ev.Gen != s.Gen || s.inflight == 0 {
			return s, nil
		}
		s.inflight--
		if ev.Err != nil {
			return m.announce(s, MsgFollowUpFailed, nil)
		}
		return m.announce(s, MsgFollowUpDone, nil)
	}
	return s, nil
}

// resolve turns an executor result into a turn, an utterance or a follow-up.
func (m Machine) resolve(s State, r ActionResult) (State, []Effect) {
	switch r.Status {
	case StatusDone:
		return m.announce(s, orDefault(r.Message, MsgActionDone), nil)
	case StatusInfo:
		if text := strings.TrimSpace(r.Message); text != "" && len(r.Data) == 0 {
			return m.announce(s, text, nil)
		}
		return m.announce(s, DescribeHallStatus(r.Data), nil)
	case StatusReady:
		if !m.Allowed(r.Call) {
			return m.announce(s, MsgFollowUpFailed, nil)
		}
		s.inflight++
		if s.Phase != SpeakingAI {
			s.Phase = Thinking
		}
		return s, []Effect{FollowUp{Gen: s.Gen, Call: strings.TrimSpace(r.Call), Payload: r.Payload}}
	default:
		return m.announce(s, orDefault(r.Msg, orDefault(r.Message, MsgActionError)), nil)
	}
}

// announce appends an AI turn and speaks it, queueing behind any utterance
// already playing.
func (m Machine) announce(s State, text string, effects []Effect) (State, []Effect) {
	s.Turns = appendTurn(s.Turns, Turn{Role: RoleAI, Text: text})
	return say(s, Utterance{Text: text, Mode: SpeechLive}, effects)
}

func say(s State, u Utterance, effects []Effect) (State, []Effect) {
	if s.speaking {
		s.queue = append(slices.Clip(s.queue), u)
		return s, effects
	}
	s.speaking = true
	s.Phase = SpeakingAI
	return s, append(effects, Speak{Gen: s.Gen, Utterance: u})
}

// submit hands the pending ACTION to the executor.
func submit(s State, effects []Effect) (State, []Effect) {
	intent := *s.pending
	s.pending = nil
	s.inflight++
	return s, append(effects, Execute{Gen: s.Gen, Intent: intent})
}

// settle moves the machine to its resting phase once nothing is playing.
// Outstanding calls keep it in Thinking so a new turn cannot start.
func settle(s State, effects []Effect) (State, []Effect) {
	switch {
	case s.inflight > 0:
		s.Phase = Thinking
	case s.Live:
		s.Phase = Listening
		effects = append(effects, StartListening{Gen: s.Gen})
	default:
		s.Phase = Idle
	}
	return s, effects
}

// reset discards history and invalidates in-flight work.
// idle reports whether s holds no history and no outstanding work.
func (s State) idle() bool {
	return len(s.Turns) == 0 && !s.speaking && len(s.queue) == 0 && s.pending == nil && s.inflight == 0
}

func reset(s State) State {
	return State{Phase: Idle, Gen: s.Gen + 1, epoch: s.epoch + 1}
}

func appendTurn(turns []Turn, t Turn) []Turn {
	return append(slices.Clip(turns), t)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
