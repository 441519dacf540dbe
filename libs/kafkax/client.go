package kafkax

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that routes each message by its Topic field and waits for all
// in-sync replicas.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewGroupReader returns a consumer-group reader over topics. Offsets are committed
// explicitly by the caller.
func NewGroupReader(brokers []string, groupID string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// SplitBrokers parses a comma separated broker list such as KAFKA_BROKERS.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
