package kafkax

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/smiledesk/smiledesk/libs/kafkax"

// InjectTraceHeaders writes the span context of ctx into headers, replacing stale trace keys.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	c := headerCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, &c)
	return c
}

func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	c := headerCarrier(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &c)
}

// StartConsumeSpan continues the producer's trace for msg. The caller ends the span.
func StartConsumeSpan(ctx context.Context, msg kafka.Message) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ExtractTraceContext(ctx, msg), msg.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.String("messaging.kafka.destination.partition", strconv.Itoa(msg.Partition)),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
}

type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(*c, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
