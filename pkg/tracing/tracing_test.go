package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) string {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName != "beamline" {
		t.Errorf("expected service name 'beamline', got '%s'", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of disabled provider: %v", err)
	}
}

func TestTraceNegotiation(t *testing.T) {
	rec := withRecorder(t)

	_, span := TraceNegotiation(context.Background(), "publisher", "sess-1")
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "negotiate.publisher" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if got := attrValue(spans[0].Attributes(), SessionIDKey); got != "sess-1" {
		t.Errorf("session id attribute = %q", got)
	}
}

func TestTraceSignaling_RecordsError(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := TraceSignaling(context.Background(), "/v1/whip")
	RecordError(ctx, errors.New("401"))
	MeasureDuration(ctx, time.Now())
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if got := attrValue(spans[0].Attributes(), EndpointKey); got != "/v1/whip" {
		t.Errorf("endpoint attribute = %q", got)
	}
}

func TestRecordError_NilIsNoop(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "noop")
	RecordError(ctx, nil)
	span.End()

	if rec.Ended()[0].Status().Code == codes.Error {
		t.Error("nil error must not mark the span failed")
	}
}

func TestTraceHTTPRequest(t *testing.T) {
	rec := withRecorder(t)

	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/sessions/:id")
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /api/v1/sessions/:id" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if got := attrValue(spans[0].Attributes(), "http.route"); got != "/api/v1/sessions/:id" {
		t.Errorf("expected route attribute, got %q", got)
	}
}
