package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smiledesk/smiledesk/libs/config"
	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/metrics"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
	"github.com/smiledesk/smiledesk/libs/runtime"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/handlers"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/sessions"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/staff"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/storage"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/tokens"
	"github.com/smiledesk/smiledesk/services/auth-service/migrations"
)

func openStores(ctx context.Context, logger *slog.Logger) (staff.Users, staff.RefreshStore, func(context.Context) error, func(), error) {
	if strings.EqualFold(config.String("AUTH_STORE", "postgres"), "memory") {
		logger.Warn("using in-memory staff store; accounts are lost on restart")
		return storage.NewMemoryUsers(), sessions.NewMemoryRefresh(), nil, func() {}, nil
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if config.Bool("DB_MIGRATE", true) {
		n, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		logger.Info("migrations applied", "count", n)
	}
	return storage.NewUserRepository(pool), sessions.NewRefreshRepository(pool), db.ReadyCheck(pool), pool.Close, nil
}

// buildSigner prefers RS256 keys so other services can verify through JWKS_URL.
func buildSigner(logger *slog.Logger) (tokens.Signer, error) {
	if pems := config.String("JWT_PRIVATE_KEYS_PEM", ""); pems != "" {
		keys, err := tokens.ParseRS256KeySet(pems)
		if err != nil {
			return nil, err
		}
		signer, err := tokens.NewRotatingRS256Signer(keys, config.String("JWT_ACTIVE_KID", ""))
		if err != nil {
			return nil, err
		}
		logger.Info("jwt signer ready", "alg", "RS256", "active_kid", signer.ActiveKid(), "keys", len(keys))
		return signer, nil
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	logger.Info("jwt signer ready", "alg", "HS256")
	return tokens.NewHS256Signer(secret), nil
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	users, refresh, dbReady, closeStore, err := openStores(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer closeStore()

	signer, err := buildSigner(logger)
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	svc := staff.NewService(users, refresh, signer, logger, staff.Config{
		ClinicID:   config.String("CLINIC_ID", "default"),
		AccessTTL:  config.Duration("ACCESS_TTL_SECONDS", time.Hour),
		RefreshTTL: time.Duration(config.Int("REFRESH_TTL_HOURS", 720)) * time.Hour,
	})
	created, err := svc.Bootstrap(ctx, config.String("BOOTSTRAP_ADMIN_EMAIL", ""), config.String("BOOTSTRAP_ADMIN_PASSWORD", ""))
	if err != nil {
		logger.Warn("admin bootstrap skipped", "err", err)
	} else if created {
		logger.Info("bootstrap admin created")
	}

	verifier := signer.Verifier()
	verifier.Leeway = config.Duration("JWT_LEEWAY", 30*time.Second)
	requireAuth := httpx.RequireAuth(verifier, logger)
	admins := func(next http.Handler) http.Handler {
		return httpx.Chain(next, requireAuth, httpx.RequireRole(staff.RoleAdmin))
	}

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTP(reg, "auth")

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: dbReady},
	)
	mux.Handle("/metrics", metrics.Handler(reg))
	h := handlers.NewAuthHandler(svc, signer.JWKS, logger)
	mux.Handle("/api/v1/auth/login", httpMetrics.Wrap("auth_login", http.HandlerFunc(h.Login)))
	mux.Handle("/api/v1/auth/refresh", httpMetrics.Wrap("auth_refresh", http.HandlerFunc(h.Refresh)))
	mux.Handle("/api/v1/auth/logout", httpMetrics.Wrap("auth_logout", http.HandlerFunc(h.Logout)))
	mux.Handle("/api/v1/auth/me", httpMetrics.Wrap("auth_me", httpx.Chain(http.HandlerFunc(h.Me), requireAuth)))
	mux.Handle("/api/v1/auth/staff", httpMetrics.Wrap("auth_staff", httpx.Chain(http.HandlerFunc(h.Staff), admins)))
	mux.HandleFunc("/.well-known/jwks.json", h.JWKS)

	limiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 30), time.Minute)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 64<<10))),
		limiter.Middleware(),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
