package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

var ErrKeyNotFound = errors.New("jwks key not found")

// JWK is the public half of an RS256 signing key as published on /.well-known/jwks.json.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKSet struct {
	Keys []JWK `json:"keys"`
}

func PublicJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// RSAPublicKey decodes the modulus and exponent. Non-RSA keys are rejected.
func (k JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" || k.N == "" || k.E == "" {
		return nil, fmt.Errorf("jwk %q: not an rsa key", k.Kid)
	}
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk %q modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %q exponent: %w", k.Kid, err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("jwk %q: invalid exponent", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// JWKSClient caches the keys of a JWKS endpoint for ttl. An unknown kid triggers at most one
// refetch per minRefetch, and keys from the last good fetch survive endpoint failures.
type JWKSClient struct {
	url        string
	ttl        time.Duration
	minRefetch time.Duration
	http       *http.Client
	now        func() time.Time

	mu          sync.Mutex
	fetchedAt   time.Time
	lastAttempt time.Time
	keys        map[string]*rsa.PublicKey
}

func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSClient{
		url:        url,
		ttl:        ttl,
		minRefetch: 10 * time.Second,
		http:       &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// Get implements KeySource.
func (c *JWKSClient) Get(keyID string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key, ok := c.keys[keyID]
	fresh := now.Sub(c.fetchedAt) < c.ttl
	if ok && fresh {
		return key, nil
	}
	if fresh && now.Sub(c.lastAttempt) < c.minRefetch {
		return nil, ErrKeyNotFound
	}

	c.lastAttempt = now
	err := c.fetch()
	if k, found := c.keys[keyID]; found {
		return k, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrKeyNotFound
}

func (c *JWKSClient) fetch() error {
	resp, err := c.http.Get(c.url)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set JWKSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kid == "" {
			continue
		}
		if pub, err := k.RSAPublicKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	c.keys = keys
	c.fetchedAt = c.now()
	return nil
}
