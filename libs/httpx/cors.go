package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type compiledCORS struct {
	origins     []string
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

func (c CORSPolicy) compile() compiledCORS {
	out := compiledCORS{
		origins:     normalizeList(c.AllowedOrigins),
		methods:     strings.Join(normalizeList(c.AllowedMethods), ", "),
		headers:     strings.Join(normalizeList(c.AllowedHeaders), ", "),
		credentials: c.AllowCredentials,
	}
	if secs := int(c.MaxAge.Seconds()); secs > 0 {
		out.maxAge = strconv.Itoa(secs)
	}
	return out
}

// allowOrigin returns the value for Access-Control-Allow-Origin. A wildcard policy echoes the
// origin when credentials are allowed since browsers reject "*" in that case.
func (c compiledCORS) allowOrigin(origin string) (string, bool) {
	for _, candidate := range c.origins {
		if candidate == "*" {
			if c.credentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}

// WithCORS adds CORS handling. With no allowed origins it is a no-op.
func WithCORS(policy CORSPolicy) Middleware {
	cfg := policy.compile()
	if len(cfg.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := cfg.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			if cfg.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if cfg.methods != "" {
				h.Set("Access-Control-Allow-Methods", cfg.methods)
			}
			if cfg.headers != "" {
				h.Set("Access-Control-Allow-Headers", cfg.headers)
			}
			if cfg.maxAge != "" {
				h.Set("Access-Control-Max-Age", cfg.maxAge)
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
