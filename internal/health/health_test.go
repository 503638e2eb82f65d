package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type readyStub struct{ err error }

func (r readyStub) Ready(context.Context) error { return r.err }

var errNoKey = errors.New("credential not set")

func probe(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestProbes(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantReady  int
		wantChecks map[string]string
	}{
		{
			name:      "no checkers",
			wantReady: http.StatusOK,
		},
		{
			name:       "configured gateway",
			checkers:   []Checker{ReadyFunc("synthesis", readyStub{}), ReadyFunc("token", readyStub{})},
			wantReady:  http.StatusOK,
			wantChecks: map[string]string{"synthesis": "ok", "token": "ok"},
		},
		{
			name:       "token issuer missing",
			checkers:   []Checker{ReadyFunc("synthesis", readyStub{}), ReadyFunc("token", readyStub{err: errors.New("no issuer")})},
			wantReady:  http.StatusServiceUnavailable,
			wantChecks: map[string]string{"synthesis": "ok", "token": "fail: no issuer"},
		},
		{
			name:       "no credential",
			checkers:   []Checker{ReadyFunc("synthesis", readyStub{err: errNoKey}), ReadyFunc("token", readyStub{err: errNoKey})},
			wantReady:  http.StatusServiceUnavailable,
			wantChecks: map[string]string{"synthesis": "fail: credential not set", "token": "fail: credential not set"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.checkers, WithVersion("1.2.3"))

			code, rep := probe(t, h, "/healthz")
			if code != http.StatusOK || rep.Status != StatusOK || rep.Version != "1.2.3" {
				t.Errorf("healthz = %d %+v, want 200 ok with version", code, rep)
			}

			code, rep = probe(t, h, "/readyz")
			if code != tt.wantReady {
				t.Errorf("readyz status = %d, want %d", code, tt.wantReady)
			}
			if rep.OK() != (tt.wantReady == http.StatusOK) {
				t.Errorf("readyz body status = %q", rep.Status)
			}
			for name, want := range tt.wantChecks {
				if got := rep.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestCheck_RunsConcurrently(t *testing.T) {
	var arrived atomic.Int32
	both := make(chan struct{})
	rendezvous := func(ctx context.Context) error {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New([]Checker{{Name: "synthesis", Check: rendezvous}, {Name: "token", Check: rendezvous}},
		WithCheckTimeout(2*time.Second))

	if rep := h.Check(context.Background()); !rep.OK() {
		t.Fatalf("checks did not run together: %v", rep.Checks)
	}
}

func TestCheck_TimeoutAndCancellation(t *testing.T) {
	hang := Checker{Name: "synthesis", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	h := New([]Checker{hang}, WithCheckTimeout(20*time.Millisecond))
	rep := h.Check(context.Background())
	if rep.OK() || !strings.Contains(rep.Checks["synthesis"], "deadline exceeded") {
		t.Errorf("timed-out check = %+v", rep)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if rep := New([]Checker{hang}).Check(ctx); rep.OK() {
		t.Error("cancelled request should not report ready")
	}
}

func TestCheck_LogsTransitionsOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var failing atomic.Bool
	failing.Store(true)
	h := New([]Checker{{Name: "synthesis", Check: func(context.Context) error {
		if failing.Load() {
			return errNoKey
		}
		return nil
	}}})

	h.Check(context.Background())
	h.Check(context.Background())
	failing.Store(false)
	h.Check(context.Background())
	h.Check(context.Background())

	out := buf.String()
	if n := strings.Count(out, "gateway not ready"); n != 1 {
		t.Errorf("not-ready logged %d times, want 1:\n%s", n, out)
	}
	if n := strings.Count(out, "gateway ready"); n != 1 {
		t.Errorf("ready logged %d times, want 1:\n%s", n, out)
	}
}
