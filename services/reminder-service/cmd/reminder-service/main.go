package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/smiledesk/smiledesk/libs/auth"
	"github.com/smiledesk/smiledesk/libs/config"
	"github.com/smiledesk/smiledesk/libs/db"
	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/kafkax"
	"github.com/smiledesk/smiledesk/libs/metrics"
	otelx "github.com/smiledesk/smiledesk/libs/otel"
	"github.com/smiledesk/smiledesk/libs/runtime"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/consumer"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/handlers"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/inbox"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/jobs"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/notify"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/reminders"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/retention"
	"github.com/smiledesk/smiledesk/services/reminder-service/migrations"
)

type jobStore interface {
	jobs.Store
	reminders.Store
	handlers.Lister
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type inboxStore interface {
	consumer.Inbox
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type stores struct {
	jobs  jobStore
	inbox inboxStore
	ready func(context.Context) error
	close func()
}

func openStores(ctx context.Context, logger *slog.Logger) (stores, error) {
	if strings.EqualFold(config.String("REMINDER_STORE", "postgres"), "memory") {
		logger.Warn("using in-memory reminder store; pending reminders are lost on restart")
		return stores{jobs: jobs.NewMemoryStore(), inbox: inbox.NewMemory(), close: func() {}}, nil
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
		jobs:  jobs.NewRepository(pool),
		inbox: inbox.NewRepository(pool),
		ready: db.ReadyCheck(pool),
		close: pool.Close,
	}, nil
}

func emailSender(logger *slog.Logger) notify.EmailSender {
	from := notify.From{
		Address: config.String("EMAIL_FROM", "no-reply@smiledesk.local"),
		Name:    config.String("EMAIL_FROM_NAME", "SmileDesk"),
	}
	switch provider := strings.ToLower(config.String("EMAIL_PROVIDER", "smtp")); provider {
	case "sendgrid":
		return notify.NewSendGridSender(config.String("SENDGRID_API_KEY", ""), from)
	case "noop":
		return notify.NoopEmailSender{}
	default:
		if provider != "smtp" {
			logger.Warn("unknown EMAIL_PROVIDER; using smtp", "provider", provider)
		}
		return notify.NewSMTPSender(
			config.String("SMTP_HOST", "mailpit"),
			config.Int("SMTP_PORT", 1025),
			config.String("SMTP_USERNAME", ""),
			config.String("SMTP_PASSWORD", ""),
			from,
		)
	}
}

func smsSender(logger *slog.Logger) notify.SMSSender {
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "noop")); provider {
	case "twilio":
		return notify.NewTwilioSender(
			config.String("TWILIO_ACCOUNT_SID", ""),
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM_NUMBER", ""),
		)
	case "webhook":
		return notify.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		if provider != "noop" {
			logger.Warn("unknown SMS_PROVIDER; sms reminders are dropped", "provider", provider)
		}
		return notify.NoopSMSSender{}
	}
}

var errMissingAuth = errors.New("JWT_SECRET or JWKS_URL is required unless AUTH_DISABLED=true")

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
	return func(next http.Handler) http.Handler {
		return httpx.Chain(next, httpx.RequireAuth(v, logger), httpx.RequireRole("dentist", "assistant", "admin"))
	}, nil
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8085")
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

	reg := metrics.NewRegistry()
	jobMetrics := jobs.NewMetrics(reg)

	worker := jobs.NewWorker(st.jobs, notify.NewDispatcher(emailSender(logger), smsSender(logger)), logger, jobMetrics, jobs.WorkerConfig{
		Interval:       config.Duration("REMINDER_POLL_INTERVAL", 2*time.Second),
		BatchSize:      config.Int("REMINDER_BATCH_SIZE", 50),
		Lease:          config.Duration("REMINDER_LEASE", 2*time.Minute),
		Backoff:        config.Duration("REMINDER_RETRY_BACKOFF", time.Minute),
		SendsPerSecond: float64(config.Int("REMINDER_SENDS_PER_SECOND", 10)),
		Renderer: notify.Renderer{
			ClinicName: config.String("CLINIC_NAME", "SmileDesk Dental"),
			Location:   loc,
		},
	})
	go worker.Run(ctx)

	purger := retention.New(logger, time.Duration(config.Int("RETENTION_DAYS", 30))*24*time.Hour,
		retention.Target{Name: "reminder_jobs", Purge: st.jobs.Purge},
		retention.Target{Name: "inbox_events", Purge: st.inbox.Purge},
	)
	if err := purger.Start(ctx, config.String("RETENTION_CRON", "@daily")); err != nil {
		logger.Error("invalid RETENTION_CRON; retention disabled", "err", err)
	} else {
		defer purger.Stop()
	}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	var kafkaReady func(context.Context) error
	if len(brokers) > 0 {
		handler := reminders.NewHandler(st.jobs, logger, jobMetrics, config.Int("REMINDER_MAX_ATTEMPTS", 5))
		reader := kafkax.NewGroupReader(brokers, config.String("KAFKA_GROUP_ID", "reminder-service"), reminders.Topics...)
		eventConsumer := consumer.New(reader, st.inbox, logger, consumer.Config{
			Attempts:   config.Int("CONSUMER_ATTEMPTS", 3),
			RetryDelay: config.Duration("CONSUMER_RETRY_DELAY", time.Second),
		}, handler.Handle)
		go eventConsumer.Run(ctx)
		kafkaReady = kafkax.ReadyCheck(brokers, reminders.Topics...)
	} else {
		logger.Warn("KAFKA_BROKERS not set; no reminder requests will be received")
	}

	protect, err := tokenVerifier(logger)
	if err != nil {
		logger.Error("auth config invalid", "err", err)
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: st.ready},
		runtime.ReadyCheck{Name: "kafka", Check: kafkaReady},
	)
	mux.Handle("/metrics", metrics.Handler(reg))
	h := handlers.New(st.jobs, logger)
	mux.Handle("/api/v1/reminders", metrics.NewHTTP(reg, "reminder").Wrap("reminders",
		httpx.Chain(http.HandlerFunc(h.ListReminders), protect)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reminder")
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
