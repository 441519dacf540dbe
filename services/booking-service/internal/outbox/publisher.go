package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smiledesk/smiledesk/libs/kafkax"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	source    Source
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
	onPublish func(eventType string)
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	// OnPublish is called once per delivered event.
	OnPublish func(eventType string)
}

func NewPublisher(source Source, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		onPublish: cfg.OnPublish,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishBatch(ctx); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch delivers one batch of pending events.
func (p *Publisher) PublishBatch(ctx context.Context) error {
	return p.source.Claim(ctx, p.batchSize, func(records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
			msg := kafka.Message{
				Topic:   r.EventType,
				Key:     []byte(r.AggregateID),
				Value:   r.Payload,
				Headers: kafkax.Headers(kafkax.EventMeta{EventID: r.ID, EventType: r.EventType, AggregateID: r.AggregateID}),
			}
			msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
			msgs = append(msgs, msg)
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if p.onPublish != nil {
			for _, r := range records {
				p.onPublish(r.EventType)
			}
		}
		return nil
	})
}
