package main

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smiledesk/smiledesk/libs/auth"
	"github.com/smiledesk/smiledesk/libs/config"
	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/metrics"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
	"github.com/smiledesk/smiledesk/libs/runtime"
	"github.com/smiledesk/smiledesk/services/gateway-service/internal/proxy"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

var errMissingAuth = errors.New("JWT_SECRET or JWKS_URL is required unless AUTH_DISABLED=true")

func upstreams() (proxy.Upstreams, error) {
	var up proxy.Upstreams
	var err error
	if up.Auth, err = proxy.ParseUpstream("auth", config.String("AUTH_URL", "http://auth-service:8081")); err != nil {
		return up, err
	}
	if up.Clinic, err = proxy.ParseUpstream("clinic", config.String("CLINIC_URL", "http://clinic-service:8082")); err != nil {
		return up, err
	}
	if up.Booking, err = proxy.ParseUpstream("booking", config.String("BOOKING_URL", "http://booking-service:8083")); err != nil {
		return up, err
	}
	if up.Reminder, err = proxy.ParseUpstream("reminder", config.String("REMINDER_URL", "http://reminder-service:8085")); err != nil {
		return up, err
	}
	return up, nil
}

// staffAuth verifies bearer tokens at the edge. It returns nil when AUTH_DISABLED is set.
func staffAuth(logger *slog.Logger) (httpx.Middleware, error) {
	if config.Bool("AUTH_DISABLED", false) {
		logger.Warn("authentication disabled")
		return nil, nil
	}
	v := auth.Verifier{
		Secret: config.String("JWT_SECRET", ""),
		Leeway: config.Duration("JWT_LEEWAY", 30*time.Second),
	}
	if url := config.String("JWKS_URL", ""); url != "" {
		v.Keys = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	if v.Secret == "" && v.Keys == nil {
		return nil, errMissingAuth
	}
	roles := config.List("STAFF_ROLES", "dentist,assistant,admin")
	return func(next http.Handler) http.Handler {
		return httpx.Chain(next, httpx.RequireAuth(v, logger), httpx.RequireRole(roles...))
	}, nil
}

func rateLimit(logger *slog.Logger) (httpx.Middleware, func(context.Context) error, func()) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
		return httpx.NewRateLimiter(perMinute, time.Minute).Middleware(), nil, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
	logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "redis_addr", addr)
	ready := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), ready, func() { _ = rdb.Close() }
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
	if err != nil {
		http.Error(w, "openapi not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	up, err := upstreams()
	if err != nil {
		logger.Error("upstream config invalid", "err", err)
		panic(err)
	}
	staff, err := staffAuth(logger)
	if err != nil {
		logger.Error("auth config invalid", "err", err)
		panic(err)
	}
	limiter, redisReady, closeRedis := rateLimit(logger)
	defer closeRedis()

	reg := metrics.NewRegistry()
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "redis", Check: redisReady},
	)
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/openapi", serveOpenAPI)
	proxy.Register(mux, proxy.Routes(up, staff), otelhttp.NewTransport(http.DefaultTransport),
		metrics.NewHTTP(reg, "gateway"), logger)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
		limiter,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
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
