package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smiledesk/smiledesk/libs/auth"
	"github.com/smiledesk/smiledesk/libs/config"
	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/libs/grpcx"
	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/kafkax"
	"github.com/smiledesk/smiledesk/libs/metrics"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
	"github.com/smiledesk/smiledesk/libs/runtime"
	"github.com/smiledesk/smiledesk/libs/schedulerpc"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/booking"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/handlers"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/payments"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/scheduling"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/storage"
	"github.com/smiledesk/smiledesk/services/booking-service/migrations"
)

var errMissingAuth = errors.New("JWT_SECRET or JWKS_URL is required unless AUTH_DISABLED=true")

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}

// stores bundles the persistence behind the service, PostgreSQL or in-memory.
type stores struct {
	appointments booking.Store
	deposits     payments.Store
	outbox       outbox.Source
	ready        func(context.Context) error
	close        func()
}

func openStores(ctx context.Context, logger *slog.Logger) (stores, error) {
	if strings.EqualFold(config.String("BOOKING_STORE", "postgres"), "memory") {
		logger.Warn("using in-memory appointment store; data is lost on restart")
		mem := storage.NewMemoryStore()
		return stores{appointments: mem, deposits: mem, outbox: mem, close: func() {}}, nil
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return stores{}, err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		return stores{}, err
	}
	if config.Bool("DB_MIGRATE", true) {
		n, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			pool.Close()
			return stores{}, err
		}
		logger.Info("migrations applied", "count", n)
	}
	return stores{
		appointments: storage.NewAppointmentRepository(pool),
		deposits:     storage.NewPaymentsRepository(pool),
		outbox:       outbox.NewRepository(pool),
		ready:        db.ReadyCheck(pool),
		close:        pool.Close,
	}, nil
}

// clinicSchedule returns the schedule provider: the clinic-service over gRPC when
// CLINIC_GRPC_ADDR is set, otherwise the built-in default week and catalogue.
func clinicSchedule(logger *slog.Logger) (scheduling.Provider, func(context.Context) error, func()) {
	addr := config.String("CLINIC_GRPC_ADDR", "")
	if addr == "" {
		logger.Warn("CLINIC_GRPC_ADDR not set; using default clinic hours and appointment types")
		return scheduling.NewStaticProvider(availability.DefaultWeeklySchedule(), scheduling.DefaultAppointmentTypes()), nil, func() {}
	}
	conn, err := grpcx.Dial(addr, grpcx.DialOptions{CallTimeout: config.Duration("CLINIC_GRPC_TIMEOUT", 2*time.Second)})
	if err != nil {
		logger.Error("clinic grpc dial failed; using defaults", "addr", addr, "err", err)
		return scheduling.NewStaticProvider(availability.DefaultWeeklySchedule(), scheduling.DefaultAppointmentTypes()), nil, func() {}
	}
	ttl := config.Duration("CLINIC_CACHE_TTL", 30*time.Second)
	provider := scheduling.NewCachedProvider(scheduling.NewGRPCProvider(conn), ttl)
	return provider, grpcx.HealthCheck(conn, schedulerpc.ServiceName), func() { _ = conn.Close() }
}

func tokenVerifier(logger *slog.Logger) (httpx.Middleware, error) {
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
	roles := config.List("BOOKING_ROLES", "dentist,assistant,admin")
	return func(next http.Handler) http.Handler {
		return httpx.Chain(next, httpx.RequireAuth(v, logger), httpx.RequireRole(roles...))
	}, nil
}

func rateLimit(logger *slog.Logger) (httpx.Middleware, func(context.Context) error, func()) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
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
	rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "booking-rl"))
	logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "redis_addr", addr)
	ready := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), ready, func() { _ = rdb.Close() }
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid CLINIC_TIMEZONE", "err", err)
		panic(err)
	}

	st, err := openStores(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer st.close()

	schedule, scheduleReady, closeSchedule := clinicSchedule(logger)
	defer closeSchedule()

	reg := metrics.NewRegistry()
	bookingMetrics := booking.NewMetrics(reg)
	svc := booking.NewService(st.appointments, schedule, logger, bookingMetrics, booking.Config{
		Location:        loc,
		ReminderOffsets: parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger),
	})

	var intents payments.IntentCreator
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		intents = payments.NewStripeIntents(key)
	}
	paymentsSvc := payments.NewService(intents, st.deposits, svc, logger, payments.Config{
		DepositCents: int64(config.Int("DEPOSIT_AMOUNT_CENTS", 0)),
		Currency:     config.String("DEPOSIT_CURRENCY", "usd"),
	})
	webhook := payments.NewWebhookHandler(paymentsSvc, config.String("STRIPE_WEBHOOK_SECRET", ""),
		config.Duration("STRIPE_WEBHOOK_TOLERANCE", 0), logger)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	var writer outbox.MessageWriter
	var kafkaReady func(context.Context) error
	if len(brokers) > 0 {
		w := kafkax.NewWriter(brokers)
		defer func() { _ = w.Close() }()
		writer = w
		kafkaReady = kafkax.ReadyCheck(brokers)
	}
	publisher := outbox.NewPublisher(st.outbox, writer, logger, outbox.PublisherConfig{
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		OnPublish: bookingMetrics.OutboxPublished,
	})
	go publisher.Run(ctx)

	protect, err := tokenVerifier(logger)
	if err != nil {
		logger.Error("auth config invalid", "err", err)
		panic(err)
	}
	limiter, redisReady, closeRedis := rateLimit(logger)
	defer closeRedis()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: st.ready},
		runtime.ReadyCheck{Name: "kafka", Check: kafkaReady},
		runtime.ReadyCheck{Name: "redis", Check: redisReady},
		runtime.ReadyCheck{Name: "clinic", Check: scheduleReady},
	)
	mux.Handle("/metrics", metrics.Handler(reg))
	h := handlers.New(svc, paymentsSvc, logger, loc)
	h.Register(mux, protect, metrics.NewHTTP(reg, "booking"), webhook)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
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
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
