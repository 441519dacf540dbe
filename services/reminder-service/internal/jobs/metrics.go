package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the reminder counters. A nil *Metrics records nothing.
type Metrics struct {
	scheduled *prometheus.CounterVec
	cancelled prometheus.Counter
	sent      *prometheus.CounterVec
	failed    *prometheus.CounterVec
	lag       prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		scheduled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "jobs_scheduled_total",
			Help:      "Reminder jobs accepted by channel.",
		}, []string{"channel"}),
		cancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "jobs_cancelled_total",
			Help:      "Pending reminder jobs cancelled with their appointment.",
		}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "sent_total",
			Help:      "Reminders delivered by channel and provider.",
		}, []string{"channel", "provider"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "send_failures_total",
			Help:      "Failed delivery attempts by channel and whether the job gave up.",
		}, []string{"channel", "final"}),
		lag: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reminder",
			Name:      "delivery_lag_seconds",
			Help:      "Delay between the requested reminder time and delivery.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
	}
}

func (m *Metrics) Scheduled(channel string) {
	if m != nil {
		m.scheduled.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) Cancelled(n int64) {
	if m != nil && n > 0 {
		m.cancelled.Add(float64(n))
	}
}

func (m *Metrics) delivered(channel, provider string, lagSeconds float64) {
	if m != nil {
		m.sent.WithLabelValues(channel, provider).Inc()
		m.lag.Observe(lagSeconds)
	}
}

func (m *Metrics) failure(channel string, final bool) {
	if m != nil {
		label := "false"
		if final {
			label = "true"
		}
		m.failed.WithLabelValues(channel, label).Inc()
	}
}
