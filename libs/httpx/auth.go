package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/smiledesk/smiledesk/libs/auth"
)

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

func PrincipalFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ctxKeyPrincipal).(*auth.Claims)
	return c, ok
}

func WithPrincipal(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, c)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v TokenVerifier, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				if logger != nil {
					logger.Debug("token rejected", "request_id", RequestIDFromContext(r.Context()), "err", err)
				}
				WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims)))
		})
	}
}

// RequireRole allows only principals holding one of roles. It must run after RequireAuth.
func RequireRole(roles ...string) Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
