package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Target is one table pruned by the retention job.
type Target struct {
	Name  string
	Purge func(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job deletes finished rows older than a retention window on a cron schedule.
type Job struct {
	targets []Target
	keep    time.Duration
	logger  *slog.Logger
	now     func() time.Time
	cron    *cron.Cron
}

func New(logger *slog.Logger, keep time.Duration, targets ...Target) *Job {
	if keep <= 0 {
		keep = 30 * 24 * time.Hour
	}
	return &Job{targets: targets, keep: keep, logger: logger, now: time.Now}
}

// Start schedules RunOnce with a standard five-field cron spec or a descriptor such as "@daily".
func (j *Job) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() { j.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	return nil
}

// Stop waits for a running purge to finish.
func (j *Job) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// RunOnce purges every target and returns the rows removed per target.
func (j *Job) RunOnce(ctx context.Context) map[string]int64 {
	cutoff := j.now().UTC().Add(-j.keep)
	removed := make(map[string]int64, len(j.targets))
	for _, t := range j.targets {
		n, err := t.Purge(ctx, cutoff)
		if err != nil {
			j.logger.Error("retention purge failed", "target", t.Name, "err", err)
			continue
		}
		removed[t.Name] = n
		if n > 0 {
			j.logger.Info("retention purge", "target", t.Name, "removed", n, "cutoff", cutoff.Format(time.RFC3339))
		}
	}
	return removed
}
