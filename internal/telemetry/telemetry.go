// Package telemetry wires the OpenTelemetry tracer provider. Spans are
// emitted around every upstream API request.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configures trace export.
type Options struct {
	Enabled  bool
	Endpoint string // OTLP/HTTP collector host:port
	Insecure bool
	Version  string
	Logger   *slog.Logger
}

// Setup installs the global tracer provider and returns a shutdown
// function. When disabled it installs nothing and the returned shutdown
// is a no-op: the default provider's spans are cheap no-ops.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exportOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exportOpts = append(exportOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, exportOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "campuswatch"),
		attribute.String("service.version", opts.Version),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	if opts.Logger != nil {
		opts.Logger.Info("telemetry enabled", "endpoint", opts.Endpoint)
	}
	return provider.Shutdown, nil
}
