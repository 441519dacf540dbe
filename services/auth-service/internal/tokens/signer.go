package tokens

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/smiledesk/smiledesk/libs/auth"
)

var ErrUnknownKid = errors.New("unknown kid")

// Signer issues access tokens and publishes the keys that verify them.
type Signer interface {
	Sign(claims auth.Claims) (string, error)
	Verifier() auth.Verifier
	JWKS() []auth.JWK
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) Signer {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verifier() auth.Verifier {
	return auth.Verifier{Secret: s.secret}
}

func (s *hs256Signer) JWKS() []auth.JWK {
	return nil
}

// RotatingSigner signs with one active RSA key and publishes every loaded key, so tokens
// signed before a rotation keep verifying.
type RotatingSigner struct {
	mu        sync.RWMutex
	activeKid string
	keys      map[string]*rsa.PrivateKey
}

func NewRotatingRS256Signer(keys map[string]*rsa.PrivateKey, activeKid string) (*RotatingSigner, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys provided")
	}
	if activeKid == "" {
		for kid := range keys {
			if activeKid == "" || kid < activeKid {
				activeKid = kid
			}
		}
	}
	if keys[activeKid] == nil {
		return nil, ErrUnknownKid
	}
	return &RotatingSigner{activeKid: activeKid, keys: keys}, nil
}

func (s *RotatingSigner) Sign(claims auth.Claims) (string, error) {
	s.mu.RLock()
	kid, key := s.activeKid, s.keys[s.activeKid]
	s.mu.RUnlock()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	return tok.SignedString(key)
}

func (s *RotatingSigner) Verifier() auth.Verifier {
	return auth.Verifier{Keys: s}
}

// Get implements auth.KeySource.
func (s *RotatingSigner) Get(kid string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.keys[kid]
	if key == nil {
		return nil, ErrUnknownKid
	}
	return &key.PublicKey, nil
}

func (s *RotatingSigner) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeKid
}

func (s *RotatingSigner) SetActiveKid(kid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[kid] == nil {
		return ErrUnknownKid
	}
	s.activeKid = kid
	return nil
}

func (s *RotatingSigner) JWKS() []auth.JWK {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.JWK, 0, len(s.keys))
	for kid, key := range s.keys {
		out = append(out, auth.PublicJWK(kid, &key.PublicKey))
	}
	return out
}

// ParseRS256KeySet reads concatenated PEM private keys, keyed by a kid derived from each
// public modulus.
func ParseRS256KeySet(pemBlobs string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	for _, block := range splitPEMBlocks(pemBlobs) {
		key, err := parseRSAPrivateKey([]byte(block))
		if err != nil {
			return nil, err
		}
		keys[KeyID(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported private key")
}

func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

func splitPEMBlocks(raw string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "-----BEGIN ") {
			inBlock = true
			current.Reset()
		}
		if inBlock {
			current.WriteString(line)
			current.WriteString("\n")
		}
		if strings.HasPrefix(line, "-----END ") && inBlock {
			inBlock = false
			blocks = append(blocks, current.String())
		}
	}
	return blocks
}
