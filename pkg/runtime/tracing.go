package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures span export for the execution layer.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Tracing handles OpenTelemetry setup and span operations. A nil or disabled
// Tracing is fully usable and does nothing.
type Tracing struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
}

// NewTracing sets up OTLP gRPC span export per the config. With tracing
// disabled it returns an inert instance.
func NewTracing(config *TracingConfig) (*Tracing, error) {
	if config == nil || !config.Enabled {
		return &Tracing{enabled: false}, nil
	}

	name := config.ServiceName
	if name == "" {
		name = "lattice"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracing{
		tracer:   tp.Tracer(name),
		provider: tp,
		enabled:  true,
	}, nil
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracing) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func (t *Tracing) RecordError(ctx context.Context, err error) {
	if t == nil || !t.enabled || err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || !t.enabled {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
