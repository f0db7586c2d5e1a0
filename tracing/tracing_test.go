/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package tracing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/acronis/task-gateway/config"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/log/logtest"
)

func TestInit_Disabled(t *testing.T) {
	tp, shutdown, err := Init(NewDefaultConfig(), "api-gateway", log.NewDisabledLogger(), Opts{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	require.False(t, span.SpanContext().IsValid())
}

func TestInit_Enabled(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	logRecorder := logtest.NewRecorder()
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	tp, shutdown, err := Init(cfg, "api-gateway", logRecorder, Opts{Exporter: exporter})
	require.NoError(t, err)

	handler := Middleware(tp, "api-gateway")(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.True(t, trace.SpanContextFromContext(r.Context()).IsValid())
		rw.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, shutdown(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
	require.Equal(t, "api-gateway", spans[0].Name)

	_, found := logRecorder.FindEntry("tracing initialized")
	require.True(t, found)
}

func TestInit_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	tp, shutdown, err := Init(cfg, "api-gateway", log.NewDisabledLogger(), Opts{Writer: &buf})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), `"Name":"dispatch"`)
}

func TestMiddleware_PropagatesIncomingTrace(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))

	handler := Middleware(tp, "api-gateway")(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	require.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}

func TestConfig(t *testing.T) {
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(`
tracing:
  enabled: true
  prettyPrint: true
  sampleRatio: 0.25
`), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, &Config{Enabled: true, PrettyPrint: true, SampleRatio: 0.25}, cfg)

	cfg = NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewConfig()
	err = config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString("tracing:\n  sampleRatio: 2\n"),
		config.DataTypeYAML, cfg)
	require.EqualError(t, err, "tracing.sampleRatio: should be in [0, 1], got 2")
}
