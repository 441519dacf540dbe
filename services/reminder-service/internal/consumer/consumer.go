package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smiledesk/smiledesk/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Consumer struct {
	reader     Reader
	logger     *slog.Logger
	inbox      Inbox
	handler    Handler
	attempts   int
	retryDelay time.Duration
}

type Config struct {
	// Attempts is how many times a failing handler is tried before the message is skipped.
	Attempts   int
	RetryDelay time.Duration
}

func New(reader Reader, inbox Inbox, logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Consumer{
		reader:     reader,
		logger:     logger,
		inbox:      inbox,
		handler:    handler,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, c.retryDelay) {
				return
			}
			continue
		}

		c.consume(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) {
	ctxSpan, span := kafkax.StartConsumeSpan(ctx, msg)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return
		}
		span.RecordError(err)
		if attempt >= c.attempts || !sleep(ctx, c.retryDelay) {
			break
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
	}
	c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "aggregate_id", meta.AggregateID)
	if ferr := c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID); ferr != nil {
		c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
