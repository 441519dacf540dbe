package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewClaims("dentist-1", "clinic-1", "dentist", time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := Verifier{Secret: secret}.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.UserID() != "dentist-1" || parsed.ClinicID != "clinic-1" || parsed.Role != "dentist" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := (Verifier{Secret: "wrong-secret"}).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	claims := NewClaims("assistant-1", "clinic-1", "assistant", -time.Minute)
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := (Verifier{Secret: "s"}).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKSet{Keys: []JWK{PublicJWK("kid-1", &key.PublicKey)}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, NewClaims("admin-1", "clinic-2", "admin", time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign RS256: %v", err)
	}

	v := Verifier{Keys: NewJWKSClient(srv.URL, time.Minute)}
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.UserID() != "admin-1" || parsed.Role != "admin" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	// HS256 is not accepted when only a key source is configured.
	hs, _ := SignHS256(NewClaims("x", "", "admin", time.Hour), "secret")
	if _, err := v.Verify(hs); err == nil {
		t.Fatal("expected HS256 token to be rejected by RS256-only verifier")
	}
}

func TestJWKSClientThrottlesUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	fetches := 0
	failing := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(JWKSet{Keys: []JWK{PublicJWK("kid-1", &key.PublicKey)}})
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := NewJWKSClient(srv.URL, time.Minute)
	c.now = func() time.Time { return now }

	if _, err := c.Get("kid-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(15 * time.Second)
	for i := 0; i < 3; i++ {
		if _, err := c.Get("rotated"); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	}
	if fetches != 2 {
		t.Fatalf("expected one refetch for the unknown kid, got %d fetches", fetches)
	}

	failing = true
	now = now.Add(2 * time.Minute)
	if _, err := c.Get("kid-1"); err != nil {
		t.Fatalf("expected cached key to survive endpoint failure, got %v", err)
	}
	if fetches != 3 {
		t.Fatalf("expected refresh attempt after ttl, got %d fetches", fetches)
	}
}

func TestJWKRejectsNonRSA(t *testing.T) {
	if _, err := (JWK{Kty: "EC", Kid: "k", N: "AQAB", E: "AQAB"}).RSAPublicKey(); err == nil {
		t.Fatal("expected error for EC key")
	}
}
