package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smiledesk/smiledesk/libs/kafkax"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/jobs"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/notify"
)

const (
	EventReminderRequested    = "booking.reminder.requested.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentDeleted   = "booking.appointment.deleted.v1"
)

// Topics are the booking topics the service consumes. Kafka orders nothing across topics, so a
// closing event may be handled before the reminder request it follows.
var Topics = []string{EventReminderRequested, EventAppointmentCompleted, EventAppointmentCancelled, EventAppointmentDeleted}

var errInvalidPayload = errors.New("invalid payload")

type reminderRequested struct {
	AppointmentID string `json:"appointment_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	RemindAt      string `json:"remind_at"`
	StartTime     string `json:"start_time"`
	PatientName   string `json:"patient_name"`
	TypeName      string `json:"type_name"`
}

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// Store is the job persistence the handler writes to.
type Store interface {
	// Insert returns jobs.ErrAppointmentClosed once CancelForAppointment ran for the appointment.
	Insert(ctx context.Context, job jobs.Job) (bool, error)
	CancelForAppointment(ctx context.Context, appointmentID string) (int64, error)
}

type Handler struct {
	store       Store
	logger      *slog.Logger
	metrics     *jobs.Metrics
	maxAttempts int
}

func NewHandler(store Store, logger *slog.Logger, m *jobs.Metrics, maxAttempts int) *Handler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Handler{store: store, logger: logger, metrics: m, maxAttempts: maxAttempts}
}

// Handle applies one booking event. Malformed payloads are logged and dropped; only store
// failures are returned so the consumer can retry.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	var err error
	switch meta.EventType {
	case EventReminderRequested:
		err = h.schedule(ctx, msg.Value)
	case EventAppointmentCompleted, EventAppointmentCancelled, EventAppointmentDeleted:
		err = h.cancel(ctx, msg.Value, meta.EventType)
	default:
		h.logger.Debug("event ignored", "event_type", meta.EventType)
		return nil
	}
	if errors.Is(err, errInvalidPayload) {
		h.logger.Error("dropping event", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	return err
}

func (h *Handler) schedule(ctx context.Context, raw []byte) error {
	var p reminderRequested
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	job, err := h.jobFor(p)
	if err != nil {
		return err
	}
	added, err := h.store.Insert(ctx, job)
	if errors.Is(err, jobs.ErrAppointmentClosed) {
		h.logger.Info("appointment already closed; reminder dropped", "appointment_id", job.AppointmentID, "channel", job.Channel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert reminder job: %w", err)
	}
	if !added {
		h.logger.Info("reminder already scheduled", "appointment_id", job.AppointmentID, "channel", job.Channel)
		return nil
	}
	h.metrics.Scheduled(job.Channel)
	h.logger.Info("reminder scheduled", "appointment_id", job.AppointmentID, "channel", job.Channel,
		"remind_at", job.RemindAt.Format(time.RFC3339))
	return nil
}

func (h *Handler) jobFor(p reminderRequested) (jobs.Job, error) {
	channel := strings.ToLower(strings.TrimSpace(p.Channel))
	recipient := strings.TrimSpace(p.Recipient)
	if p.AppointmentID == "" || recipient == "" {
		return jobs.Job{}, fmt.Errorf("%w: appointment_id and recipient are required", errInvalidPayload)
	}
	if channel != notify.ChannelEmail && channel != notify.ChannelSMS {
		return jobs.Job{}, fmt.Errorf("%w: unsupported channel %q", errInvalidPayload, p.Channel)
	}
	remindAt, err := time.Parse(time.RFC3339, p.RemindAt)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("%w: remind_at: %v", errInvalidPayload, err)
	}
	start, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("%w: start_time: %v", errInvalidPayload, err)
	}
	if !remindAt.Before(start) {
		return jobs.Job{}, fmt.Errorf("%w: remind_at is not before start_time", errInvalidPayload)
	}
	return jobs.Job{
		Key:           jobs.JobKey(p.AppointmentID, channel, remindAt),
		AppointmentID: p.AppointmentID,
		Channel:       channel,
		Recipient:     recipient,
		RemindAt:      remindAt.UTC(),
		StartTime:     start.UTC(),
		PatientName:   p.PatientName,
		TypeName:      p.TypeName,
		MaxAttempts:   h.maxAttempts,
	}, nil
}

func (h *Handler) cancel(ctx context.Context, raw []byte, eventType string) error {
	var p appointmentEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if p.AppointmentID == "" {
		return fmt.Errorf("%w: appointment_id is required", errInvalidPayload)
	}
	n, err := h.store.CancelForAppointment(ctx, p.AppointmentID)
	if err != nil {
		return fmt.Errorf("close appointment reminders: %w", err)
	}
	h.metrics.Cancelled(n)
	h.logger.Info("reminders cancelled", "appointment_id", p.AppointmentID, "count", n, "event_type", eventType)
	return nil
}
