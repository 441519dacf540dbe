package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smiledesk/smiledesk/libs/auth"
)

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f fakeVerifier) Verify(string) (*auth.Claims, error) { return f.claims, f.err }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	claims := &auth.Claims{Role: "assistant"}
	cases := []struct {
		name   string
		header string
		v      TokenVerifier
		want   int
	}{
		{"missing", "", fakeVerifier{claims: claims}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fakeVerifier{claims: claims}, http.StatusUnauthorized},
		{"rejected", "Bearer abc", fakeVerifier{err: auth.ErrInvalidToken}, http.StatusUnauthorized},
		{"ok", "Bearer abc", fakeVerifier{claims: claims}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Chain(okHandler(), RequireAuth(tc.v, nil))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := Chain(okHandler(),
		RequireAuth(fakeVerifier{claims: &auth.Claims{Role: "assistant"}}, nil),
		RequireRole("dentist", "admin"),
	)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/clinic/hours", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	Chain(okHandler(), RequireRole("admin")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %d", rec.Code)
	}
}

func TestDecodeJSONValidates(t *testing.T) {
	type bookReq struct {
		PatientID string `json:"patient_id" validate:"required"`
		TypeID    string `json:"type_id" validate:"required"`
	}

	var dst bookReq
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_id":"p1"}`))
	err := DecodeJSON(req, &dst)
	if err == nil || !strings.Contains(err.Error(), "type_id") {
		t.Fatalf("expected validation error naming type_id, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_id":"p1","type_id":"t","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_id":"p1","type_id":"t"}`))
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "slot conflict")
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusConflict || body.Error != "slot conflict" {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
}

func TestRequestIDAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := Chain(inner, WithRequestID, WithAccessLog(logger))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}
	if !strings.Contains(buf.String(), `"status":418`) || !strings.Contains(buf.String(), `"request_id":"abc-123"`) {
		t.Fatalf("unexpected access log: %s", buf.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || seen == "abc-123" {
		t.Fatalf("expected generated request id, got %q", seen)
	}
}

func TestValidRequestID(t *testing.T) {
	for id, want := range map[string]bool{
		"abc-123":                true,
		"":                       false,
		"has space":              false,
		"line\nbreak":            false,
		strings.Repeat("a", 129): false,
	} {
		if got := ValidRequestID(id); got != want {
			t.Fatalf("ValidRequestID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestAccessLogLevels(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/slots", http.StatusOK, slog.LevelInfo},
		{"/healthz", http.StatusOK, slog.LevelDebug},
		{"/readyz", http.StatusServiceUnavailable, slog.LevelError},
		{"/api/v1/appointments", http.StatusTooManyRequests, slog.LevelWarn},
		{"/api/v1/appointments", http.StatusConflict, slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := accessLevel(tc.path, tc.status); got != tc.want {
			t.Fatalf("%s %d: level %v, want %v", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestWithRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithRecover(logger))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWithRecoverReraisesAbort(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }), WithRecover(logger))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestWithBodyLimitRejectsDeclaredLength(t *testing.T) {
	called := false
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }), WithBodyLimit(8))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"type":"cleaning"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge || called {
		t.Fatalf("expected 413 without calling the handler, got %d called=%v", rec.Code, called)
	}
	if WithBodyLimit(0) != nil || WithTimeout(0) != nil {
		t.Fatal("non-positive limits should disable the middleware")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := Chain(okHandler(), WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://front.desk"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         10 * time.Minute,
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/slots", nil)
	req.Header.Set("Origin", "https://front.desk")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://front.desk" || rec.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected CORS headers %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected allow-origin for foreign origin")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := Chain(okHandler(), rl.Middleware())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	now = now.Add(2 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rec.Code)
	}
}

func TestRateLimiterHeaders(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := Chain(okHandler(), rl.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-RateLimit-Remaining") != "0" || rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}

	now = now.Add(20 * time.Second)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "40" {
		t.Fatalf("expected Retry-After 40, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestRedisRateLimiter(t *testing.T) {
	counts := map[string]int64{}
	rl := NewRedisRateLimiter(nil, 2, time.Minute, "test")
	rl.incr = func(_ context.Context, key string) (int64, time.Duration, error) {
		counts[key]++
		return counts[key], 1500 * time.Millisecond, nil
	}
	h := Chain(okHandler(), rl.Middleware(nil, false))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if got := last.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After rounded up to 2, got %q", got)
	}
	if counts["test:203.0.113.9"] != 3 {
		t.Fatalf("expected key by forwarded client, got %v", counts)
	}
}

func TestRedisRateLimiterFailure(t *testing.T) {
	rl := NewRedisRateLimiter(nil, 2, time.Minute, "")
	rl.incr = func(context.Context, string) (int64, time.Duration, error) {
		return 0, 0, errors.New("connection refused")
	}

	rec := httptest.NewRecorder()
	Chain(okHandler(), rl.Middleware(nil, true)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("fail-open: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	Chain(okHandler(), rl.Middleware(nil, false)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed: expected 503, got %d", rec.Code)
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
	ctx := WithPrincipal(context.Background(), &auth.Claims{Role: "dentist"})
	if p, ok := PrincipalFromContext(ctx); !ok || p.Role != "dentist" {
		t.Fatalf("unexpected principal %+v", p)
	}
}
