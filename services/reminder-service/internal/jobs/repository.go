package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smiledesk/smiledesk/libs/db"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `
	id, job_key, appointment_id, channel, recipient, remind_at, start_time,
	COALESCE(patient_name, ''), COALESCE(type_name, ''), COALESCE(traceparent, ''), COALESCE(tracestate, ''),
	status, attempts, max_attempts, next_run_at, COALESCE(last_error, ''), COALESCE(provider_id, ''),
	created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Key, &j.AppointmentID, &j.Channel, &j.Recipient, &j.RemindAt, &j.StartTime,
		&j.PatientName, &j.TypeName, &j.Traceparent, &j.Tracestate,
		&j.Status, &j.Attempts, &j.MaxAttempts, &j.NextRunAt, &j.LastError, &j.ProviderID,
		&j.CreatedAt, &j.UpdatedAt)
	return j, err
}

// lockAppointment serializes Insert and CancelForAppointment for one appointment until tx ends.
func lockAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, appointmentID)
	return err
}

// Insert stores job unless a job with the same key exists. It reports whether a row was added,
// and returns ErrAppointmentClosed when the appointment's closing event was already applied.
func (r *Repository) Insert(ctx context.Context, job Job) (bool, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	var added bool
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockAppointment(ctx, tx, job.AppointmentID); err != nil {
			return err
		}
		var closed bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM closed_appointments WHERE appointment_id = $1)`,
			job.AppointmentID,
		).Scan(&closed); err != nil {
			return err
		}
		if closed {
			return ErrAppointmentClosed
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO reminder_jobs
				(job_key, appointment_id, channel, recipient, remind_at, start_time, patient_name, type_name,
				 max_attempts, next_run_at, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $5, $10, $11)
			ON CONFLICT (job_key) DO NOTHING
		`, job.Key, job.AppointmentID, job.Channel, job.Recipient, job.RemindAt, job.StartTime,
			job.PatientName, job.TypeName, job.MaxAttempts, traceparent, tracestate)
		if err != nil {
			return err
		}
		added = tag.RowsAffected() == 1
		return nil
	})
	return added, err
}

// Claim leases up to limit due jobs. A claimed job is invisible to other workers until the lease
// expires, so a worker that dies mid-send leaves its jobs to be retried.
func (r *Repository) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE reminder_jobs
		SET attempts = attempts + 1,
		    next_run_at = $2,
		    updated_at = now()
		WHERE id IN (
			SELECT id
			FROM reminder_jobs
			WHERE status = 'pending' AND next_run_at <= $1
			ORDER BY next_run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, now, now.Add(lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkSent(ctx context.Context, id int64, providerID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'sent', provider_id = $2, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, providerID)
	return err
}

// MarkFailed records a failed attempt. The job is retried at nextRunAt until attempts reaches
// maxAttempts, after which it is failed for good.
func (r *Repository) MarkFailed(ctx context.Context, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2,
		    next_run_at = $3,
		    last_error = $4,
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, status, nextRunAt, lastError)
	return err
}

// CancelForAppointment cancels every pending reminder of an appointment and marks it closed, so
// a reminder request delivered after the closing event is refused.
func (r *Repository) CancelForAppointment(ctx context.Context, appointmentID string) (int64, error) {
	var n int64
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockAppointment(ctx, tx, appointmentID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO closed_appointments (appointment_id) VALUES ($1) ON CONFLICT (appointment_id) DO NOTHING`,
			appointmentID,
		); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE reminder_jobs
			SET status = 'cancelled', updated_at = now()
			WHERE appointment_id = $1 AND status = 'pending'
		`, appointmentID)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func (r *Repository) ListForAppointment(ctx context.Context, appointmentID string) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM reminder_jobs
		WHERE appointment_id = $1
		ORDER BY remind_at ASC, channel ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Purge deletes finished jobs last touched before cutoff, and closed-appointment markers older
// than cutoff. It returns the number of jobs removed.
func (r *Repository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM reminder_jobs
		WHERE status IN ('sent', 'failed', 'cancelled') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM closed_appointments WHERE closed_at < $1`, cutoff); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
