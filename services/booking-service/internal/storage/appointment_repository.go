package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
)

// AppointmentRepository is the PostgreSQL appointment store. The appointments table carries an
// exclusion constraint so overlapping non-cancelled rows can never both commit.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id::text, patient_id, type_id, appointment_date::text, start_time, end_time, status,
	COALESCE(notes, ''), reminder_time, COALESCE(patient_name, ''), COALESCE(patient_email, ''),
	COALESCE(patient_phone, ''), COALESCE(cancel_reason, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var reminder *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.TypeID,
		&appt.Date,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Notes,
		&reminder,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.ReminderTime = reminder
	return appt, nil
}

func (r *AppointmentRepository) ListForDate(ctx context.Context, date string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1::date
		ORDER BY start_time ASC
	`, date)
}

func (r *AppointmentRepository) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT 200
	`, patientID)
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if db.IsNoRows(err) || db.IsInvalidText(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func (r *AppointmentRepository) FindByIdempotencyKey(ctx context.Context, key string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE idempotency_key = $1
	`, key))
	if db.IsNoRows(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

// Create inserts appt and its events atomically.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, idempotencyKey string, events []outbox.Event) error {
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var key *string
		if idempotencyKey != "" {
			key = &idempotencyKey
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, patient_id, type_id, appointment_date, start_time, end_time, status, notes,
				 reminder_time, patient_name, patient_email, patient_phone, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		`, appt.ID, appt.PatientID, appt.TypeID, appt.Date, appt.StartTime, appt.EndTime, appt.Status,
			appt.Notes, appt.ReminderTime, appt.PatientName, appt.PatientEmail, appt.PatientPhone, key, appt.CreatedAt)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, events)
	})
	switch {
	case db.IsExclusionViolation(err):
		return ErrOverlap
	case db.IsUniqueViolation(err):
		return ErrDuplicate
	}
	return err
}

// Transition moves the appointment to status `to` under a row lock. It fails with
// model.ErrInvalidTransition when the current status does not allow it.
func (r *AppointmentRepository) Transition(ctx context.Context, id string, to model.Status, reason string, events EventsFunc) (model.Appointment, error) {
	var out model.Appointment
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		appt, err := getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, appt.Status, to)
		}
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
				cancel_reason = CASE WHEN $2 = 'cancelled' THEN NULLIF($3, '') ELSE cancel_reason END,
				updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns, id, to, reason))
		if err != nil {
			return err
		}
		if err := emit(ctx, tx, appt, events); err != nil {
			return err
		}
		out = appt
		return nil
	})
	return out, err
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string, events EventsFunc) (model.Appointment, error) {
	var out model.Appointment
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		appt, err := getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
			return err
		}
		if err := emit(ctx, tx, appt, events); err != nil {
			return err
		}
		out = appt
		return nil
	})
	return out, err
}

func getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if db.IsNoRows(err) || db.IsInvalidText(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func emit(ctx context.Context, tx pgx.Tx, appt model.Appointment, events EventsFunc) error {
	if events == nil {
		return nil
	}
	evts, err := events(appt)
	if err != nil {
		return err
	}
	return insertEvents(ctx, tx, evts)
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []outbox.Event) error {
	for _, evt := range events {
		if err := outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("outbox insert %s: %w", evt.EventType, err)
		}
	}
	return nil
}
