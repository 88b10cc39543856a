package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder
}

func TestStartSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "worker.execute",
		attribute.String("task_name", "send_booking_confirmation_email"),
		attribute.Int("attempt", 1),
	)
	if GetTraceID(ctx) == "" {
		t.Error("GetTraceID() empty inside started span")
	}
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "worker.execute" {
		t.Errorf("span name = %q", spans[0].Name())
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["task_name"].AsString(); got != "send_booking_confirmation_email" {
		t.Errorf("task_name attribute = %q", got)
	}
	if got := attrs["attempt"].AsInt64(); got != 1 {
		t.Errorf("attempt attribute = %d", got)
	}
}

func TestCarrierRoundTrip(t *testing.T) {
	setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "dispatch.enqueue")
	defer span.End()

	headers := Carrier(ctx)
	if len(headers) == 0 {
		t.Fatal("Carrier() returned no headers inside an active span")
	}

	// Restoring on a fresh context yields the same trace id, which is how
	// trace continuity survives a trip through the broker.
	restored := FromCarrier(context.Background(), headers)
	_, childSpan := StartSpan(restored, "worker.execute")
	defer childSpan.End()

	if got, want := childSpan.SpanContext().TraceID().String(), GetTraceID(ctx); got != want {
		t.Errorf("restored trace id = %q, want %q", got, want)
	}
}

func TestFromCarrierEmpty(t *testing.T) {
	setupTestTracer(t)

	ctx := FromCarrier(context.Background(), nil)
	if GetTraceID(ctx) != "" {
		t.Error("GetTraceID() non-empty for empty carrier")
	}
	ctx = FromCarrier(context.Background(), map[string]string{})
	if GetTraceID(ctx) != "" {
		t.Error("GetTraceID() non-empty for empty header map")
	}
}

func TestSetSpanError(t *testing.T) {
	recorder := setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "payments.reconcile")
	SetSpanError(ctx, errors.New("provider unreachable"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if len(spans[0].Events()) == 0 {
		t.Error("no error event recorded on span")
	}
}

func TestGetTraceIDNoSpan(t *testing.T) {
	if got := GetTraceID(context.Background()); got != "" {
		t.Errorf("GetTraceID() = %q on bare context, want empty", got)
	}
}

func TestGetVersion(t *testing.T) {
	original := os.Getenv("SERVICE_VERSION")
	defer os.Setenv("SERVICE_VERSION", original)

	os.Setenv("SERVICE_VERSION", "v1.2.3")
	if got := getVersion(); got != "v1.2.3" {
		t.Errorf("getVersion() = %q, want v1.2.3", got)
	}
	os.Unsetenv("SERVICE_VERSION")
	if got := getVersion(); got != "dev" {
		t.Errorf("getVersion() = %q, want dev", got)
	}
}

func TestGetOTLPEndpoint(t *testing.T) {
	original := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	defer os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", original)

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "default", value: "", want: "tempo:4318"},
		{name: "plain host port", value: "collector:4318", want: "collector:4318"},
		{name: "strips http scheme", value: "http://collector:4318", want: "collector:4318"},
		{name: "strips https scheme", value: "https://collector:4318", want: "collector:4318"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			} else {
				os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.value)
			}
			if got := getOTLPEndpoint(); got != tt.want {
				t.Errorf("getOTLPEndpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}
