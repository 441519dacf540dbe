package jobs

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	otelx "github.com/smiledesk/smiledesk/libs/otel"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/notify"
)

// Store is the job persistence the worker drives.
type Store interface {
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error)
	MarkSent(ctx context.Context, id int64, providerID string) error
	MarkFailed(ctx context.Context, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, m notify.Message) (string, error)
}

type Worker struct {
	store     Store
	sender    Deliverer
	renderer  notify.Renderer
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	lease     time.Duration
	backoff   time.Duration
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Lease     time.Duration
	Backoff   time.Duration
	// SendsPerSecond caps provider calls across the batch. Zero means unlimited.
	SendsPerSecond float64
	Renderer       notify.Renderer
}

func NewWorker(store Store, sender Deliverer, logger *slog.Logger, m *Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	limit := rate.Inf
	burst := 1
	if cfg.SendsPerSecond > 0 {
		limit = rate.Limit(cfg.SendsPerSecond)
		burst = max(1, int(cfg.SendsPerSecond))
	}
	return &Worker{
		store:     store,
		sender:    sender,
		renderer:  cfg.Renderer,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   m,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		lease:     cfg.Lease,
		backoff:   cfg.Backoff,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch claims and delivers one batch of due jobs. It returns how many were claimed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.store.Claim(ctx, w.now().UTC(), w.batchSize, w.lease)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.process(jobCtx, job); err != nil {
			return len(jobs), err
		}
	}
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job Job) error {
	now := w.now().UTC()
	if !now.Before(job.StartTime) {
		w.logger.Warn("reminder expired before delivery", "job_id", job.ID, "appointment_id", job.AppointmentID)
		w.metrics.failure(job.Channel, true)
		return w.store.MarkFailed(ctx, job.ID, job.MaxAttempts, job.MaxAttempts, now, "appointment already started")
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := w.renderer.Render(notify.Reminder{
		Channel:     job.Channel,
		Recipient:   job.Recipient,
		PatientName: job.PatientName,
		TypeName:    job.TypeName,
		StartTime:   job.StartTime,
	})
	provider, err := w.sender.Deliver(ctx, msg)
	if err != nil {
		final := job.Attempts >= job.MaxAttempts
		w.metrics.failure(job.Channel, final)
		w.logger.Error("reminder delivery failed", "err", err, "job_id", job.ID,
			"appointment_id", job.AppointmentID, "channel", job.Channel, "attempt", job.Attempts, "final", final)
		shift := min(max(job.Attempts-1, 0), 6)
		next := now.Add(w.backoff * time.Duration(1<<shift))
		return w.store.MarkFailed(ctx, job.ID, job.Attempts, job.MaxAttempts, next, err.Error())
	}

	w.metrics.delivered(job.Channel, provider, now.Sub(job.RemindAt).Seconds())
	w.logger.Info("reminder sent", "job_id", job.ID, "appointment_id", job.AppointmentID,
		"channel", job.Channel, "provider", provider)
	return w.store.MarkSent(ctx, job.ID, provider)
}
