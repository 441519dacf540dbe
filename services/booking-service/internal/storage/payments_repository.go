package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
)

// Deposit is a payment received for an appointment.
type Deposit struct {
	ID              string
	AppointmentID   string
	PaymentIntentID string
	ProviderEventID string
	AmountCents     int64
	Currency        string
	CreatedAt       time.Time
}

type PaymentsRepository struct {
	pool *db.Pool
}

func NewPaymentsRepository(pool *db.Pool) *PaymentsRepository {
	return &PaymentsRepository{pool: pool}
}

// RecordDeposit stores d and its events. A provider event that was already recorded yields
// ErrDuplicate and writes nothing.
func (r *PaymentsRepository) RecordDeposit(ctx context.Context, d Deposit, events []outbox.Event) error {
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_deposits
				(id, appointment_id, payment_intent_id, provider_event_id, amount_cents, currency, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, d.ID, d.AppointmentID, d.PaymentIntentID, d.ProviderEventID, d.AmountCents, d.Currency, d.CreatedAt)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, events)
	})
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PaymentsRepository) DepositsForAppointment(ctx context.Context, appointmentID string) ([]Deposit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, appointment_id::text, payment_intent_id, provider_event_id, amount_cents, currency, created_at
		FROM appointment_deposits
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deposit
	for rows.Next() {
		var d Deposit
		if err := rows.Scan(&d.ID, &d.AppointmentID, &d.PaymentIntentID, &d.ProviderEventID, &d.AmountCents, &d.Currency, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
