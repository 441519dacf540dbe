package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/smiledesk/smiledesk/libs/db"
)

// Insert writes evt inside the caller's transaction.
func Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, evt.Traceparent, evt.Tracestate)
	return err
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Claim(ctx context.Context, limit int, fn func([]Record) error) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := fetchUnpublished(ctx, tx, limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		seqs := make([]int64, 0, len(records))
		for _, rcd := range records {
			seqs = append(seqs, rcd.Seq)
		}
		return markPublished(ctx, tx, seqs)
	})
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.Seq, &rcd.ID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func markPublished(ctx context.Context, tx pgx.Tx, seqs []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, seqs)
	return err
}
