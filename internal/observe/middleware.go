package observe

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID back to the caller so a booking
// portal ticket can be matched to gateway logs.
const CorrelationHeader = "X-Correlation-ID"

// UnmatchedRoute is the route label used for paths outside the known set.
const UnmatchedRoute = "unmatched"

// responseWriter records what the wrapped handler wrote.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type middlewareConfig struct {
	routes []string
	quiet  []string
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middlewareConfig)

// WithRoutes lists the paths reported verbatim in span names and metric
// labels. Any other path is reported as [UnmatchedRoute] so scanners probing
// random URLs cannot blow up label cardinality. Without this option every
// path is reported verbatim.
func WithRoutes(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) { c.routes = append(c.routes, paths...) }
}

// WithQuietPaths logs successful requests to these paths at debug level.
// Meant for probes and scrapes that would otherwise drown the request log.
func WithQuietPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) { c.quiet = append(c.quiet, paths...) }
}

func (c *middlewareConfig) route(path string) string {
	if c.routes == nil || slices.Contains(c.routes, path) {
		return path
	}
	return UnmatchedRoute
}

// Middleware traces and measures every request.
//
// Inbound W3C trace context is honoured, so a caller that already traces
// its booking flow sees the gateway span as a child. The trace ID is echoed
// in [CorrelationHeader]. Each request is logged once on completion through
// [Logger], which attaches trace and request IDs.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var cfg middlewareConfig
	for _, o := range opts {
		o(&cfg)
	}
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := cfg.route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()

			if id := CorrelationID(ctx); id != "" {
				w.Header().Set(CorrelationHeader, id)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))
			elapsed := time.Since(start)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", route),
				attribute.String("status", statusLabel(rw.status)),
			))

			level := slog.LevelInfo
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case rw.status < http.StatusBadRequest && slices.Contains(cfg.quiet, r.URL.Path):
				level = slog.LevelDebug
			}
			Logger(ctx).LogAttrs(ctx, level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int("bytes", rw.written),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
