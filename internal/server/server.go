// Package server exposes the synthesis and token gateways over HTTP.
//
// Routes:
//
//	POST /voice/tts    synthesis; binary audio or a JSON failure report
//	POST /voice/token  conversation token; JSON in both cases
//	GET  /healthz      liveness
//	GET  /readyz       readiness (fails while no provider credential is set)
//	GET  /metrics      Prometheus scrape endpoint
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/hallvoice/internal/gateway"
	"github.com/MrWong99/hallvoice/internal/health"
	"github.com/MrWong99/hallvoice/internal/observe"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// Synthesizer renders speech. Implemented by [gateway.Synthesizer].
type Synthesizer interface {
	Synthesize(ctx context.Context, req gateway.SynthesisRequest) (*gateway.SynthesisResult, error)
}

// TokenIssuer obtains conversation tokens. Implemented by [gateway.TokenIssuer].
type TokenIssuer interface {
	Issue(ctx context.Context, body []byte) (*gateway.TokenResult, error)
}

// Server is the gateway HTTP server.
type Server struct {
	synth          Synthesizer
	tokens         TokenIssuer
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler

	maxBody      int64
	shutdownWait time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics sink used by the request middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// [promhttp.Handler], which serves the registry the OTel Prometheus exporter
// writes to.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMaxBodyBytes caps request bodies. Non-positive values keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown in [Server.Run].
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownWait = d
		}
	}
}

// New creates a server in front of synth and tokens.
func New(synth Synthesizer, tokens TokenIssuer, opts ...Option) *Server {
	s := &Server{
		synth:        synth,
		tokens:       tokens,
		maxBody:      DefaultMaxBodyBytes,
		shutdownWait: 15 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the fully wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /voice/tts", s.handleTTS)
	mux.HandleFunc("POST /voice/token", s.handleToken)
	mux.Handle("GET /metrics", s.metricsHandler)
	if s.health != nil {
		s.health.Register(mux)
	}

	var h http.Handler = mux
	h = limitBody(s.maxBody)(h)
	h = recoverPanics(h)
	h = observe.Middleware(s.metrics,
		observe.WithRoutes("/voice/tts", "/voice/token", "/healthz", "/readyz", "/metrics"),
		observe.WithQuietPaths("/healthz", "/readyz", "/metrics"),
	)(h)
	h = requestID(h)
	return h
}

// Run listens on addr and serves until ctx is done, then shuts down
// gracefully. When certFile and keyFile are both set it serves TLS.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, certFile, keyFile)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", certFile != "")
		if certFile != "" && keyFile != "" {
			errCh <- srv.ServeTLS(ln, certFile, keyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownWait)
	defer cancel()
	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	<-errCh
	return nil
}
