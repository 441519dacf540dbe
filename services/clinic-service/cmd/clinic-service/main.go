package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smiledesk/smiledesk/libs/auth"
	"github.com/smiledesk/smiledesk/libs/config"
	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/metrics"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
	"github.com/smiledesk/smiledesk/libs/runtime"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/cache"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/handlers"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/storage"
	"github.com/smiledesk/smiledesk/services/clinic-service/migrations"
)

func openStore(ctx context.Context, logger *slog.Logger) (clinic.Store, func(context.Context) error, func(), error) {
	if strings.EqualFold(config.String("CLINIC_STORE", "postgres"), "memory") {
		logger.Warn("using in-memory clinic store; changes are lost on restart")
		return storage.NewMemory(storage.DefaultTypes()...), nil, func() {}, nil
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if config.Bool("DB_MIGRATE", true) {
		n, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info("migrations applied", "count", n)
	}
	return storage.NewRepository(pool), db.ReadyCheck(pool), pool.Close, nil
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8082")
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

	store, dbReady, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer closeStore()

	var (
		scheduleCache clinic.Cache
		redisReady    func(context.Context) error
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		scheduleCache = cache.NewRedis(rdb, config.String("CLINIC_CACHE_PREFIX", "clinic"), config.Duration("CLINIC_CACHE_TTL", 5*time.Minute))
		redisReady = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("schedule cache enabled (redis)", "redis_addr", addr)
	}

	svc := clinic.NewService(store, scheduleCache, logger)
	h := handlers.New(svc, logger)

	v := auth.Verifier{Secret: config.String("JWT_SECRET", ""), Leeway: config.Duration("JWT_LEEWAY", 30*time.Second)}
	if url := config.String("JWKS_URL", ""); url != "" {
		v.Keys = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	var (
		readers httpx.Middleware
		admins  httpx.Middleware
	)
	if v.Secret != "" || v.Keys != nil {
		requireAuth := httpx.RequireAuth(v, logger)
		readers = func(next http.Handler) http.Handler {
			return httpx.Chain(next, requireAuth, httpx.RequireRole("dentist", "assistant", "admin"))
		}
		admins = func(next http.Handler) http.Handler {
			return httpx.Chain(next, requireAuth, httpx.RequireRole("admin"))
		}
	} else if !config.Bool("AUTH_DISABLED", false) {
		logger.Error("JWT_SECRET or JWKS_URL is required unless AUTH_DISABLED=true")
		panic("auth not configured")
	}

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTP(reg, "clinic")

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: dbReady},
		runtime.ReadyCheck{Name: "redis", Check: redisReady},
	)
	mux.Handle("/metrics", metrics.Handler(reg))
	getHours := httpx.Chain(http.HandlerFunc(h.GetHours), readers)
	putHours := httpx.Chain(http.HandlerFunc(h.UpdateHours), admins)
	mux.Handle("/api/v1/clinic/hours", httpMetrics.Wrap("clinic_hours", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			getHours.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodPut {
			putHours.ServeHTTP(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})))
	listTypes := httpx.Chain(http.HandlerFunc(h.ListAppointmentTypes), readers)
	createType := httpx.Chain(http.HandlerFunc(h.CreateAppointmentType), admins)
	mux.Handle("/api/v1/clinic/appointment-types", httpMetrics.Wrap("clinic_appointment_types", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			listTypes.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodPost {
			createType.ServeHTTP(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
	)
	handler = otelhttp.NewHandler(handler, "clinic")
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

	if err := startGrpcServer(ctx, logger, svc); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
