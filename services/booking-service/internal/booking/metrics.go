package booking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the booking counters. A nil *Metrics records nothing.
type Metrics struct {
	slotQueries prometheus.Counter
	bookings    *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	published   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		slotQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "slot_queries_total",
			Help:      "Day slot evaluations served.",
		}),
		bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		}, []string{"result"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Rejected bookings by the check that caught the overlap.",
		}, []string{"stage"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status changes by target status.",
		}, []string{"status"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to Kafka by event type.",
		}, []string{"event_type"}),
	}
}

func (m *Metrics) slotQuery() {
	if m != nil {
		m.slotQueries.Inc()
	}
}

func (m *Metrics) booking(result string) {
	if m != nil {
		m.bookings.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) conflict(stage string) {
	if m != nil {
		m.conflicts.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) transition(status string) {
	if m != nil {
		m.transitions.WithLabelValues(status).Inc()
	}
}

// OutboxPublished fits outbox.PublisherConfig.OnPublish.
func (m *Metrics) OutboxPublished(eventType string) {
	if m != nil {
		m.published.WithLabelValues(eventType).Inc()
	}
}
