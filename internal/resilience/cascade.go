// Package resilience provides the ordered candidate cascade shared by the
// synthesis and token gateways: try each candidate in turn under its own
// deadline, record every failure, and stop at the first success.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"
)

// ErrAllFailed is returned when every candidate in a cascade fails.
var ErrAllFailed = errors.New("all candidates failed")

// MaxDetailLen bounds the length of [Failure.Detail] in bytes.
const MaxDetailLen = 500

// StatusCoder is implemented by errors that carry an upstream HTTP status.
// Failures whose error does not implement it are recorded with status 0.
type StatusCoder interface {
	HTTPStatus() int
}

// detailer is implemented by errors that can describe themselves without
// a status prefix.
type detailer interface {
	ErrorDetail() string
}

// Failure records one failed attempt.
type Failure[C any] struct {
	Candidate C
	Status    int
	Detail    string
}

// Outcome describes how a cascade ended.
type Outcome[C any] struct {
	// Winner is the candidate that succeeded. Zero on exhaustion.
	Winner C

	// Index is the position of Winner in the candidate list, or -1.
	Index int

	// Attempts is the number of candidates tried, including the winner.
	Attempts int

	// Failures lists every failed attempt in order.
	Failures []Failure[C]
}

// Options tunes a cascade run.
type Options[C any] struct {
	// Timeout caps each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration

	// Describe returns slog attributes identifying a candidate in log lines.
	Describe func(C) []any

	// Logger receives a warning for each failed attempt. Nil uses slog.Default.
	Logger *slog.Logger

	// OnFailure, if set, is called synchronously after each failed attempt.
	OnFailure func(Failure[C])
}

// Cascade calls attempt for each candidate in order until one succeeds. Each
// call receives a child context bounded by opts.Timeout. On exhaustion the
// returned error wraps [ErrAllFailed] and the outcome carries one failure per
// candidate. If ctx itself ends, the cascade stops and returns ctx.Err()
// wrapped, together with the failures recorded so far.
func Cascade[C, R any](ctx context.Context, candidates []C, attempt func(context.Context, C) (R, error), opts Options[C]) (R, Outcome[C], error) {
	var zero R
	out := Outcome[C]{Index: -1}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, out, fmt.Errorf("resilience: cascade aborted after %d attempts: %w", out.Attempts, err)
		}

		out.Attempts++
		res, err := runAttempt(ctx, c, attempt, opts.Timeout)
		if err == nil {
			out.Winner = c
			out.Index = i
			return res, out, nil
		}

		f := Failure[C]{Candidate: c, Status: StatusOf(err), Detail: DetailOf(err)}
		out.Failures = append(out.Failures, f)

		attrs := []any{"attempt", out.Attempts, "status", f.Status, "err", f.Detail}
		if opts.Describe != nil {
			attrs = append(opts.Describe(c), attrs...)
		}
		log.Warn("candidate failed, trying next", attrs...)

		if opts.OnFailure != nil {
			opts.OnFailure(f)
		}
	}
	return zero, out, fmt.Errorf("%w (%d attempts)", ErrAllFailed, out.Attempts)
}

func runAttempt[C, R any](ctx context.Context, c C, attempt func(context.Context, C) (R, error), timeout time.Duration) (R, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return attempt(ctx, c)
}

// StatusOf returns the upstream HTTP status carried by err, or 0 for
// transport failures and timeouts.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// DetailOf returns a bounded human-readable description of err.
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var d detailer
	if errors.As(err, &d) {
		msg = d.ErrorDetail()
	}
	return Truncate(msg, MaxDetailLen)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
