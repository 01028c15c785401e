// Package observer provides OTEL-based tracing for relay routing operations.
//
// It configures an OTLP HTTP trace exporter and wraps Backend and
// EmbeddingProvider with instrumented versions. Export targets are set via
// the standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.) or the
// explicit endpoint passed to Init.
package observer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const scopeName = "github.com/relaykit/relay/observer"

// Init sets up the global OTEL trace provider with an OTLP HTTP exporter.
// endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT when non-empty. Returns a
// shutdown function that must be called on application exit.
func Init(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("relay")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, err
	}

	var expOpts []otlptracehttp.Option
	if endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpoint(endpoint))
	}
	traceExp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
