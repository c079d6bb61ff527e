// Package telemetry wires OpenTelemetry tracing for the orchestrator.
// Initialization failure is non-fatal: the service logs a warning and runs
// without export rather than refusing to start.
package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the process-wide tracer; StartSpan initialises it on first use.
var Tracer trace.Tracer

// Meter is the process-wide meter. otelhttp's instrumentation
// (internal/api/server.go) reads the globally-registered MeterProvider, so
// setting it here is enough to get server-side HTTP metrics exported
// alongside traces without any call-site instrumentation of our own.
var Meter metric.Meter

// Init configures the global tracer provider against otlpEndpoint. If
// otlpEndpoint is empty, tracing is left as the OTel no-op implementation.
func Init(ctx context.Context, serviceName, otlpEndpoint string) (func(context.Context) error, error) {
	Tracer = otel.Tracer(serviceName)
	Meter = otel.Meter(serviceName)

	if otlpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("0.1.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = otel.Tracer(serviceName)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(otlpEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)
	Meter = otel.Meter(serviceName)

	log.Printf("[telemetry] exporting traces and metrics to %s", otlpEndpoint)

	return func(shutdownCtx context.Context) error {
		ctx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			return err
		}
		return tracerProvider.Shutdown(ctx)
	}, nil
}

// StartSpan is a small convenience wrapper that starts a span with the
// given attributes on the process-wide Tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if Tracer == nil {
		Tracer = otel.Tracer("codeopen-orchestrator")
	}
	return Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
