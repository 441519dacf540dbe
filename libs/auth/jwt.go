package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies a clinic staff member. Role is one of the clinic roles (dentist,
// assistant, admin).
type Claims struct {
	ClinicID string `json:"clinic_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the sub claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// NewClaims builds claims for userID valid for ttl from now.
func NewClaims(userID, clinicID, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		ClinicID: clinicID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// KeySource resolves an RS256 public key by key id.
type KeySource interface {
	Get(keyID string) (any, error)
}

// Verifier checks bearer tokens. HS256 tokens are verified with Secret, RS256 tokens with
// Keys. Either may be unset to reject that algorithm.
type Verifier struct {
	Secret string
	Keys   KeySource
	Leeway time.Duration
}

func (v Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods(v.methods()),
		jwt.WithLeeway(v.Leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v Verifier) methods() []string {
	var out []string
	if v.Secret != "" {
		out = append(out, jwt.SigningMethodHS256.Alg())
	}
	if v.Keys != nil {
		out = append(out, jwt.SigningMethodRS256.Alg())
	}
	return out
}

func (v Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		return []byte(v.Secret), nil
	case jwt.SigningMethodRS256.Alg():
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.Keys.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}
