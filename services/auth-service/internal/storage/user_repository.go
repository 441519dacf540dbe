package storage

import (
	"context"

	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/staff"
)

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id::text, clinic_id, email, name, password_hash, role, active, created_at`

func (r *UserRepository) Create(ctx context.Context, m staff.Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_users (id, clinic_id, email, name, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ClinicID, m.Email, m.Name, m.PasswordHash, m.Role, m.Active, m.CreatedAt)
	if db.IsUniqueViolation(err) {
		return staff.ErrDuplicateEmail
	}
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (staff.Member, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM staff_users WHERE email = $1`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (staff.Member, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM staff_users WHERE id = $1`, id)
}

func (r *UserRepository) get(ctx context.Context, query string, arg string) (staff.Member, error) {
	var m staff.Member
	err := r.pool.QueryRow(ctx, query, arg).Scan(&m.ID, &m.ClinicID, &m.Email, &m.Name, &m.PasswordHash, &m.Role, &m.Active, &m.CreatedAt)
	if db.IsNoRows(err) {
		return staff.Member{}, staff.ErrNotFound
	}
	return m, err
}

func (r *UserRepository) List(ctx context.Context) ([]staff.Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM staff_users ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []staff.Member
	for rows.Next() {
		var m staff.Member
		if err := rows.Scan(&m.ID, &m.ClinicID, &m.Email, &m.Name, &m.PasswordHash, &m.Role, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM staff_users`).Scan(&n)
	return n, err
}
