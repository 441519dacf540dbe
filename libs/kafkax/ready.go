package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

var errNoBrokers = errors.New("kafka brokers not configured")

// ReadyCheck passes when any broker accepts a connection and, if topics are given,
// reports metadata for each of them.
func ReadyCheck(brokers []string, topics ...string) func(context.Context) error {
	dialer := &kafka.Dialer{Timeout: 2 * time.Second}
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errNoBrokers
		}
		var lastErr error
		for _, b := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", b)
			if err != nil {
				lastErr = err
				continue
			}
			err = checkTopics(conn, topics)
			_ = conn.Close()
			return err
		}
		return fmt.Errorf("no kafka broker reachable: %w", lastErr)
	}
}

func checkTopics(conn *kafka.Conn, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	parts, err := conn.ReadPartitions(topics...)
	if err != nil {
		return fmt.Errorf("read partitions: %w", err)
	}
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		seen[p.Topic] = true
	}
	for _, t := range topics {
		if !seen[t] {
			return fmt.Errorf("topic %q missing", t)
		}
	}
	return nil
}
