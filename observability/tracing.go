// Package observability provides OpenTelemetry wiring for outbound calls and
// message processing, adapted from the teacher's pkg/telemetry (which
// instrumented per-capability agent invocations) to instrument per-message
// delivery attempts instead.
package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// MessageMetadata describes the integration message a span or metric is
// attached to, the replacement for the teacher's CapabilityMetadata.
type MessageMetadata struct {
	Integration string
	EventType   string
	Direction   string
}

// Tracer is implemented by Tracing and by a noop stand-in for tests that
// don't care about spans.
type Tracer interface {
	StartDelivery(ctx context.Context, msg MessageMetadata) (context.Context, trace.Span)
	RecordDelivery(ctx context.Context, msg MessageMetadata, duration time.Duration, err error)
	Shutdown(ctx context.Context) error
}

// Tracing is the zero-configuration OTEL integration: if
// OTEL_EXPORTER_OTLP_ENDPOINT is unset it still creates spans and metrics,
// just without exporting them anywhere, which keeps local development and
// unit tests free of network dependencies.
type Tracing struct {
	TraceProvider *sdktrace.TracerProvider
	MeterProvider metric.MeterProvider
	Tracer        trace.Tracer
	Meter         metric.Meter
	serviceName   string
}

// NewTracing builds a Tracing instance for serviceName. Honors
// OTEL_SDK_DISABLED=true for tests and CI that must not touch the network.
func NewTracing(serviceName string) (Tracer, error) {
	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		return &Tracing{
			Tracer: otel.Tracer("noop"),
			Meter:  otel.Meter("noop"),
		}, nil
	}
	if serviceName == "" {
		serviceName = "integrationhub"
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(getServiceVersion()),
			semconv.DeploymentEnvironmentKey.String(getEnvironment()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	traceProvider, err := setupTraceProvider(res)
	if err != nil {
		return nil, fmt.Errorf("observability: setup trace provider: %w", err)
	}
	meterProvider := otel.GetMeterProvider()

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Tracing{
		TraceProvider: traceProvider,
		MeterProvider: meterProvider,
		Tracer:        traceProvider.Tracer("integrationhub"),
		Meter:         meterProvider.Meter("integrationhub"),
		serviceName:   serviceName,
	}, nil
}

func setupTraceProvider(res *resource.Resource) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

func getServiceVersion() string {
	if v := os.Getenv("OTEL_SERVICE_VERSION"); v != "" {
		return v
	}
	return "0.1.0"
}

func getEnvironment() string {
	if env := os.Getenv("DEPLOYMENT_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

// StartDelivery opens a span for one delivery attempt of msg: an outbound
// httpclient.Do call or one processor.Process dispatch.
func (t *Tracing) StartDelivery(ctx context.Context, msg MessageMetadata) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("integration.%s.%s", msg.Integration, msg.EventType)
	ctx, span := t.Tracer.Start(ctx, spanName)
	span.SetAttributes(
		attribute.String("integration.name", msg.Integration),
		attribute.String("integration.event_type", msg.EventType),
		attribute.String("integration.direction", msg.Direction),
	)
	return ctx, span
}

// RecordDelivery records a counter and a duration histogram for one delivery
// attempt, tagged success/error.
func (t *Tracing) RecordDelivery(ctx context.Context, msg MessageMetadata, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	labels := metric.WithAttributes(
		attribute.String("integration", msg.Integration),
		attribute.String("event_type", msg.EventType),
		attribute.String("status", status),
	)

	if counter, cErr := t.Meter.Int64Counter(
		"integration_deliveries_total",
		metric.WithDescription("Total integration message delivery attempts"),
	); cErr == nil {
		counter.Add(ctx, 1, labels)
	}
	if histogram, hErr := t.Meter.Float64Histogram(
		"integration_delivery_duration_seconds",
		metric.WithDescription("Integration message delivery duration"),
	); hErr == nil {
		histogram.Record(ctx, duration.Seconds(), labels)
	}
}

// Shutdown drains the trace provider, if one was set up.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.TraceProvider != nil {
		return t.TraceProvider.Shutdown(ctx)
	}
	return nil
}
