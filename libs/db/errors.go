package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeInvalidText        = "22P02"
)

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsExclusionViolation reports whether err came from an EXCLUDE constraint, e.g. two
// overlapping time ranges.
func IsExclusionViolation(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// IsInvalidText reports whether Postgres rejected a parameter that does not parse as the column
// type, e.g. "abc" for a UUID.
func IsInvalidText(err error) bool {
	return hasCode(err, codeInvalidText)
}
