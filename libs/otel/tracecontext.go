package otelx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// Stored trace context (outbox rows, reminder jobs) is always W3C Trace Context, whatever
// propagator the process installs globally.
var w3c = propagation.TraceContext{}

// TraceContextStrings returns the traceparent and tracestate of the span in ctx, or empty
// strings when ctx carries no valid span.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := propagation.MapCarrier{}
	w3c.Inject(ctx, carrier)
	return carrier["traceparent"], carrier["tracestate"]
}

// ContextWithTraceContext makes a stored trace context the remote parent of spans started
// from the returned context.
func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	return w3c.Extract(ctx, propagation.MapCarrier{
		"traceparent": traceparent,
		"tracestate":  tracestate,
	})
}
