package kafkax

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToPositionKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "booking.appointment.booked.v1", Partition: 2, Offset: 41, Key: []byte("appt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "booking.appointment.booked.v1/2/41" {
		t.Fatalf("unexpected event id %q", meta.EventID)
	}
	if meta.EventType != "booking.appointment.booked.v1" || meta.AggregateID != "appt-1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = Headers(EventMeta{EventID: "evt-2", EventType: "custom", AggregateID: "appt-2"})
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "custom" || meta.AggregateID != "appt-2" {
		t.Fatalf("expected header values, got %+v", meta)
	}
}

func TestHeadersOmitEmptyAggregate(t *testing.T) {
	if got := len(Headers(EventMeta{EventID: "e", EventType: "t"})); got != 2 {
		t.Fatalf("expected 2 headers, got %d", got)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, Headers(EventMeta{EventID: "e", EventType: "t"}))
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id mismatch: %s", got.TraceID())
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); !errors.Is(err, errNoBrokers) {
		t.Fatalf("expected errNoBrokers, got %v", err)
	}
}

func TestStartConsumeSpanContinuesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))
	msg := kafka.Message{Topic: "booking.appointment.created.v1", Headers: InjectTraceHeaders(parent, nil)}

	ctx, span := StartConsumeSpan(context.Background(), msg)
	defer span.End()
	if got := trace.SpanContextFromContext(ctx).TraceID(); got != traceID {
		t.Fatalf("trace id mismatch: %s", got)
	}
}
