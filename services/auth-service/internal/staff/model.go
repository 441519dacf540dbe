package staff

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleDentist   = "dentist"
	RoleAssistant = "assistant"
	RoleAdmin     = "admin"
)

var (
	ErrNotFound           = errors.New("staff member not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("role must be dentist, assistant or admin")
	ErrInactive           = errors.New("account disabled")
)

// Member is a clinic staff account.
type Member struct {
	ID           string
	ClinicID     string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

func ValidRole(role string) bool {
	switch role {
	case RoleDentist, RoleAssistant, RoleAdmin:
		return true
	}
	return false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
