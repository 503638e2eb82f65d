package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Latency buckets in seconds. Synthesis of a sentence usually lands between
// a few hundred milliseconds and the per-attempt timeout, so the default SDK
// buckets (tuned for milliseconds) would put everything in the first bin.
var (
	synthesisBuckets = []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 8, 12}
	requestBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "hallvoice".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// Role distinguishes the speech gateway from the live assistant when both
	// report into the same backend. Exported as the hallvoice.role attribute.
	Role string

	// SampleRatio is the fraction of root traces kept, in [0,1]. Zero keeps
	// every trace.
	SampleRatio float64

	// TraceExporter is an optional span exporter. When nil, spans are still
	// created (so request logs carry trace IDs) but never leave the process.
	TraceExporter sdktrace.SpanExporter
}

func (c ProviderConfig) resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
	}
	if c.Role != "" {
		attrs = append(attrs, attribute.String("hallvoice.role", c.Role))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

func (c ProviderConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// bucketViews pins explicit histogram boundaries for the latency instruments.
func bucketViews() []sdkmetric.View {
	view := func(name string, bounds []float64) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
		)
	}
	return []sdkmetric.View{
		view("hallvoice.tts.duration", synthesisBuckets),
		view("hallvoice.llm.duration", synthesisBuckets),
		view("hallvoice.http.request.duration", requestBuckets),
	}
}

// InitProvider registers global meter and tracer providers. Metrics are
// bridged to the default Prometheus registry so the gateway's /metrics
// endpoint serves them; spans go to cfg.TraceExporter when set.
//
// The returned function flushes both providers and should be deferred from
// main with a bounded context.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hallvoice"
	}

	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	meterOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}
	for _, v := range bucketViews() {
		meterOpts = append(meterOpts, sdkmetric.WithView(v))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	}
	if cfg.TraceExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	// Tracer first so pending spans are exported before the meter goes away.
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
