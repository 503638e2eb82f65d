// Package health serves the gateway's liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz
// answers 200 only when every [Checker] passes, so a gateway started without
// an ElevenLabs key stays out of the load balancer until one is configured.
// Both reply with a [Report].
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Report statuses.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and an error describing what is missing otherwise.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadyFunc adapts anything with a Ready method (the synthesis and token
// gateways) into a [Checker].
func ReadyFunc(name string, r interface{ Ready(context.Context) error }) Checker {
	return Checker{Name: name, Check: r.Ready}
}

// Report is the probe response body. Checks maps checker names to "ok" or
// "fail: <reason>".
type Report struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Status == StatusOK }

// Handler serves /healthz and /readyz.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
	version  string

	// ready remembers the last readiness outcome so only transitions are logged.
	ready atomic.Bool
}

// Option configures a [Handler].
type Option func(*Handler)

// WithCheckTimeout overrides [DefaultCheckTimeout].
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithVersion adds the build version to every report.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: append([]Checker(nil), checkers...), timeout: DefaultCheckTimeout}
	for _, o := range opts {
		o(h)
	}
	h.ready.Store(true)
	return h
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.write(w, Report{Status: StatusOK, Version: h.version})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.Check(r.Context()))
}

// Check runs every checker concurrently. A failing check never cancels the
// others; each runs under its own deadline derived from ctx.
func (h *Handler) Check(ctx context.Context) Report {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			errs[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Version: h.version}
	if len(h.checkers) > 0 {
		rep.Checks = make(map[string]string, len(h.checkers))
	}
	for i, c := range h.checkers {
		if errs[i] != nil {
			rep.Checks[c.Name] = StatusFail + ": " + errs[i].Error()
			rep.Status = StatusFail
			continue
		}
		rep.Checks[c.Name] = StatusOK
	}

	if was := h.ready.Swap(rep.OK()); was != rep.OK() {
		if rep.OK() {
			slog.Info("gateway ready")
		} else {
			slog.Warn("gateway not ready", "checks", rep.Checks)
		}
	}
	return rep
}

func (h *Handler) write(w http.ResponseWriter, rep Report) {
	status := http.StatusOK
	if !rep.OK() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}
