package assistant_test

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hallvoice/internal/assistant"
	"github.com/MrWong99/hallvoice/internal/assistant/mock"
)

// startSession runs s until the test ends.
func startSession(t *testing.T, s *assistant.Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func waitFor(t *testing.T, s *assistant.Session, what string, cond func(assistant.State) bool) assistant.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := s.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state: phase=%v turns=%q", what, st.Phase, texts(st.Turns))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func utteranceTexts(us []assistant.Utterance) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = u.Text
	}
	return out
}

func TestSession_LiveChatLoop(t *testing.T) {
	rec := &mock.Recognizer{Texts: []string{"hello"}}
	cls := &mock.Classifier{Intent: assistant.Intent{Type: assistant.IntentChat, Message: "Hi there"}}
	exec := &mock.Executor{}
	spk := &mock.Speaker{}

	s := assistant.NewSession(assistant.Machine{Intro: "Welcome."}, assistant.Deps{
		Recognizer: rec, Classifier: cls, Executor: exec, Speaker: spk,
	})
	startSession(t, s)
	s.EnterLive()

	st := waitFor(t, s, "second listen", func(st assistant.State) bool {
		return len(st.Turns) == 3 && st.Phase == assistant.Listening && rec.Calls() == 2
	})

	want := []string{"ai:Welcome.", "user:hello", "ai:Hi there"}
	if got := texts(st.Turns); !slices.Equal(got, want) {
		t.Errorf("turns = %q, want %q", got, want)
	}
	spoken := spk.Spoken()
	if len(spoken) != 2 || spoken[0].Mode != assistant.SpeechIntro || spoken[1].Mode != assistant.SpeechLive {
		t.Errorf("spoken = %+v", spoken)
	}
	if n := len(exec.Intents()); n != 0 {
		t.Errorf("executor called %d times for a CHAT intent", n)
	}
	if got := cls.Messages(); !slices.Equal(got, []string{"hello"}) {
		t.Errorf("classified = %q", got)
	}
}

func TestSession_ActionReadyFlow(t *testing.T) {
	rec := &mock.Recognizer{Texts: []string{"book hall A for friday"}}
	cls := &mock.Classifier{Intent: assistant.Intent{Type: assistant.IntentAction, Reply: "Let me book that.", Action: "book_hall"}}
	exec := &mock.Executor{Result: assistant.ActionResult{
		Status:  assistant.StatusReady,
		Call:    "/booking/create",
		Payload: json.RawMessage(`{"hall":"A","day":"friday"}`),
	}}
	caller := &mock.Caller{}
	spk := &mock.Speaker{}

	s := assistant.NewSession(assistant.Machine{AllowedCalls: []string{"/booking/create"}}, assistant.Deps{
		Recognizer: rec, Classifier: cls, Executor: exec, Caller: caller, Speaker: spk,
	})
	startSession(t, s)
	s.EnterLive()

	st := waitFor(t, s, "confirmation", func(st assistant.State) bool {
		return len(st.Turns) == 3 && st.Phase == assistant.Listening && rec.Calls() == 2
	})

	want := []string{"user:book hall A for friday", "ai:Let me book that.", "ai:" + assistant.MsgFollowUpDone}
	if got := texts(st.Turns); !slices.Equal(got, want) {
		t.Errorf("turns = %q, want %q", got, want)
	}
	if got := utteranceTexts(spk.Spoken()); !slices.Equal(got, []string{"Let me book that.", assistant.MsgFollowUpDone}) {
		t.Errorf("spoken = %q", got)
	}
	calls := caller.Calls()
	if len(calls) != 1 || calls[0].Path != "/booking/create" || string(calls[0].Payload) != `{"hall":"A","day":"friday"}` {
		t.Errorf("follow-up calls = %+v", calls)
	}
	if intents := exec.Intents(); len(intents) != 1 || intents[0].Action != "book_hall" {
		t.Errorf("executed = %+v", intents)
	}
}

func TestSession_ExitModeCancelsSpeech(t *testing.T) {
	rec := &mock.Recognizer{Texts: []string{"hi"}}
	cls := &mock.Classifier{Intent: assistant.Intent{Type: assistant.IntentChat, Message: "A very long answer"}}
	gate := make(chan struct{})
	spk := &mock.Speaker{Gate: gate}
	defer close(gate)

	s := assistant.NewSession(assistant.Machine{}, assistant.Deps{Recognizer: rec, Classifier: cls, Speaker: spk})
	startSession(t, s)
	s.EnterLive()

	waitFor(t, s, "speaking", func(st assistant.State) bool {
		return st.Phase == assistant.SpeakingAI && st.Speaking()
	})
	stopsBefore := spk.Stops()
	s.ExitMode()

	st := waitFor(t, s, "idle after exit", func(st assistant.State) bool {
		return st.Phase == assistant.Idle && !st.Live
	})
	if len(st.Turns) != 0 {
		t.Errorf("history not discarded: %q", texts(st.Turns))
	}
	if spk.Stops() <= stopsBefore {
		t.Error("speaker not stopped on exit")
	}

	// The cancelled utterance must not move the machine.
	time.Sleep(20 * time.Millisecond)
	if st := s.State(); st.Phase != assistant.Idle || len(st.Turns) != 0 {
		t.Errorf("state changed after exit: phase=%v turns=%q", st.Phase, texts(st.Turns))
	}
}

func TestSession_RecognizerUnavailable(t *testing.T) {
	s := assistant.NewSession(assistant.Machine{}, assistant.Deps{Speaker: &mock.Speaker{}})
	startSession(t, s)
	s.ToggleMic()

	st := waitFor(t, s, "warning turn", func(st assistant.State) bool { return len(st.Turns) == 1 })
	if st.Phase != assistant.Idle || st.Turns[0].Text != assistant.MsgRecognizerUnavailable {
		t.Errorf("state = phase %v turns %q", st.Phase, texts(st.Turns))
	}
}

func TestSession_ClassifierFailureIsSpoken(t *testing.T) {
	rec := &mock.Recognizer{Texts: []string{"hello"}}
	cls := &mock.Classifier{Err: context.DeadlineExceeded}
	spk := &mock.Speaker{}

	s := assistant.NewSession(assistant.Machine{}, assistant.Deps{Recognizer: rec, Classifier: cls, Speaker: spk})
	startSession(t, s)
	s.ToggleMic()

	st := waitFor(t, s, "idle", func(st assistant.State) bool {
		return len(st.Turns) == 2 && st.Phase == assistant.Idle
	})
	if st.Turns[1].Text != assistant.MsgTrouble {
		t.Errorf("turns = %q", texts(st.Turns))
	}
	if got := utteranceTexts(spk.Spoken()); !slices.Equal(got, []string{assistant.MsgTrouble}) {
		t.Errorf("spoken = %q", got)
	}
}

func TestSession_TurnAndPhaseHandlers(t *testing.T) {
	var (
		mu     sync.Mutex
		turns  []assistant.Turn
		phases []assistant.Phase
	)
	rec := &mock.Recognizer{Texts: []string{"hi"}}
	cls := &mock.Classifier{Intent: assistant.Intent{Type: assistant.IntentChat, Message: "Hello"}}

	s := assistant.NewSession(assistant.Machine{}, assistant.Deps{Recognizer: rec, Classifier: cls, Speaker: &mock.Speaker{}},
		assistant.WithTurnHandler(func(tr assistant.Turn) {
			mu.Lock()
			turns = append(turns, tr)
			mu.Unlock()
		}),
		assistant.WithPhaseHandler(func(p assistant.Phase) {
			mu.Lock()
			phases = append(phases, p)
			mu.Unlock()
		}),
	)
	startSession(t, s)
	s.ToggleMic()
	waitFor(t, s, "idle", func(st assistant.State) bool { return len(st.Turns) == 2 && st.Phase == assistant.Idle })

	mu.Lock()
	defer mu.Unlock()
	if got := texts(turns); !slices.Equal(got, []string{"user:hi", "ai:Hello"}) {
		t.Errorf("turn handler saw %q", got)
	}
	wantPhases := []assistant.Phase{assistant.Listening, assistant.Thinking, assistant.SpeakingAI, assistant.Idle}
	if !slices.Equal(phases, wantPhases) {
		t.Errorf("phases = %v, want %v", phases, wantPhases)
	}
}

func TestSession_PostAfterStop(t *testing.T) {
	s := assistant.NewSession(assistant.Machine{}, assistant.Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if s.EnterLive() {
		t.Error("EnterLive accepted after Run returned")
	}
	if s.ID() == "" {
		t.Error("empty session ID")
	}
}
