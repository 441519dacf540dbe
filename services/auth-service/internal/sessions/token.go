package sessions

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// RefreshToken is a stored session. Only the SHA-256 of the opaque token is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	Hash      string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

func (t RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// Usable reports whether the token may still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked() && now.Before(t.ExpiresAt)
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewToken returns 256 random bits, base64url encoded.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
