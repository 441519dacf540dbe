package kafkax

import (
	"fmt"

	"github.com/segmentio/kafka-go"
)

const (
	headerEventID     = "event_id"
	headerEventType   = "event_type"
	headerAggregateID = "aggregate_id"
)

// EventMeta identifies an event independently of its payload. AggregateID is the entity the
// event is about (an appointment id) and doubles as the partition key.
type EventMeta struct {
	EventID     string
	EventType   string
	AggregateID string
}

// Headers encodes meta as message headers. An empty AggregateID is left out.
func Headers(meta EventMeta) []kafka.Header {
	headers := []kafka.Header{
		{Key: headerEventID, Value: []byte(meta.EventID)},
		{Key: headerEventType, Value: []byte(meta.EventType)},
	}
	if meta.AggregateID != "" {
		headers = append(headers, kafka.Header{Key: headerAggregateID, Value: []byte(meta.AggregateID)})
	}
	return headers
}

// ExtractEventMeta reads the event headers. Messages written without them get the topic as
// type, the key as aggregate, and a position-derived id that is stable across redeliveries.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:     HeaderValue(msg.Headers, headerEventID),
		EventType:   HeaderValue(msg.Headers, headerEventType),
		AggregateID: HeaderValue(msg.Headers, headerAggregateID),
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if meta.AggregateID == "" {
		meta.AggregateID = string(msg.Key)
	}
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
