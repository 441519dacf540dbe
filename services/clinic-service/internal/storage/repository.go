package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WeeklyHours(ctx context.Context) ([]clinic.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_open, start_minute, end_minute
		FROM clinic_working_hours
		ORDER BY weekday
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clinic.WorkingHours
	for rows.Next() {
		var (
			h       clinic.WorkingHours
			weekday int
		)
		if err := rows.Scan(&weekday, &h.IsOpen, &h.StartMinute, &h.EndMinute); err != nil {
			return nil, err
		}
		h.Weekday = time.Weekday(weekday)
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertHours writes all days in one transaction.
func (r *Repository) UpsertHours(ctx context.Context, hours []clinic.WorkingHours) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		for _, h := range hours {
			if _, err := tx.Exec(ctx, `
				INSERT INTO clinic_working_hours (weekday, is_open, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (weekday) DO UPDATE
				SET is_open = EXCLUDED.is_open,
					start_minute = EXCLUDED.start_minute,
					end_minute = EXCLUDED.end_minute,
					updated_at = now()
			`, int(h.Weekday), h.IsOpen, h.StartMinute, h.EndMinute); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) ListTypes(ctx context.Context) ([]clinic.AppointmentType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_minutes, color, created_at
		FROM appointment_types
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clinic.AppointmentType
	for rows.Next() {
		var t clinic.AppointmentType
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.Color, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) CreateType(ctx context.Context, t clinic.AppointmentType) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_types (id, name, duration_minutes, color, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.DurationMinutes, t.Color, t.CreatedAt)
	if db.IsUniqueViolation(err) {
		return clinic.ErrDuplicateType
	}
	return err
}
