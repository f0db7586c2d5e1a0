/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package tracing sets up OpenTelemetry spans for gateway requests and their upstream calls.
// Spans are exported to stdout; when tracing is disabled a no-op provider is used.
package tracing

import (
	"context"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/acronis/task-gateway/log"
)

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// Opts represents options for Init.
type Opts struct {
	// Writer receives exported spans. os.Stdout is used by default.
	Writer io.Writer
	// Exporter overrides the stdout exporter (e.g. tracetest.NewInMemoryExporter in tests).
	Exporter sdktrace.SpanExporter
}

// Init creates a tracer provider for the service and installs it (with the W3C trace context propagator) globally.
func Init(cfg *Config, serviceName string, logger log.FieldLogger, opts Opts) (trace.TracerProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter := opts.Exporter
	if exporter == nil {
		writer := opts.Writer
		if writer == nil {
			writer = os.Stdout
		}
		exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(writer)}
		if cfg.PrettyPrint {
			exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
		}
		var err error
		if exporter, err = stdouttrace.New(exporterOpts...); err != nil {
			return nil, nil, err
		}
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("tracing initialized", log.String("service", serviceName), log.Float64("sample_ratio", cfg.SampleRatio))
	return tp, tp.Shutdown, nil
}

// Middleware starts a server span for every request passing through the gateway.
func Middleware(tp trace.TracerProvider, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(propagation.TraceContext{}),
		)
	}
}

// NewTransport wraps an upstream round tripper so every upstream call gets a client span
// and the trace context is propagated to the backend.
func NewTransport(delegate http.RoundTripper, tp trace.TracerProvider) http.RoundTripper {
	return otelhttp.NewTransport(delegate,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(propagation.TraceContext{}),
	)
}
