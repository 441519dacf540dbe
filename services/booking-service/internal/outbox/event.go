package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	otelx "github.com/smiledesk/smiledesk/libs/otel"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
}

// NewEvent marshals payload and stamps the event with a fresh id and the trace context of ctx.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return Event{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
	}, nil
}

// Record is an outbox row awaiting publication.
type Record struct {
	Seq int64
	Event
	CreatedAt time.Time
}

// Source hands out unpublished records. Claim calls fn with up to limit records and marks
// them published only when fn returns nil.
type Source interface {
	Claim(ctx context.Context, limit int, fn func([]Record) error) error
}
