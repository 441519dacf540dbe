package booking

import (
	"context"
	"time"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentDeleted   = "booking.appointment.deleted.v1"
	EventReminderRequested    = "booking.reminder.requested.v1"

	aggregateAppointment = "appointment"
)

type AppointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	TypeID        string `json:"type_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	PatientName   string `json:"patient_name,omitempty"`
	PatientEmail  string `json:"patient_email,omitempty"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	Reason        string `json:"reason,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// ReminderRequested asks the reminder service to notify a patient on one channel.
type ReminderRequested struct {
	AppointmentID string `json:"appointment_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	RemindAt      string `json:"remind_at"`
	StartTime     string `json:"start_time"`
	PatientName   string `json:"patient_name,omitempty"`
	TypeName      string `json:"type_name,omitempty"`
}

func appointmentEvent(ctx context.Context, eventType string, a model.Appointment, now time.Time) (outbox.Event, error) {
	return outbox.NewEvent(ctx, aggregateAppointment, a.ID, eventType, AppointmentEvent{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		TypeID:        a.TypeID,
		Date:          a.Date,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		PatientName:   a.PatientName,
		PatientEmail:  a.PatientEmail,
		PatientPhone:  a.PatientPhone,
		Reason:        a.CancelReason,
		OccurredAt:    now.UTC().Format(time.RFC3339),
	})
}

// reminderTimes returns the instants at which to remind about a, skipping any before now.
// An explicit reminder time replaces the configured offsets.
func reminderTimes(a model.Appointment, offsets []time.Duration, now time.Time) []time.Time {
	var candidates []time.Time
	if a.ReminderTime != nil {
		candidates = []time.Time{*a.ReminderTime}
	} else {
		for _, off := range offsets {
			candidates = append(candidates, a.StartTime.Add(-off))
		}
	}
	out := candidates[:0]
	for _, t := range candidates {
		if t.Before(now) || !t.Before(a.StartTime) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func reminderEvents(ctx context.Context, a model.Appointment, typeName string, offsets []time.Duration, now time.Time) ([]outbox.Event, error) {
	channels := []struct{ name, recipient string }{
		{"email", a.PatientEmail},
		{"sms", a.PatientPhone},
	}
	var events []outbox.Event
	for _, at := range reminderTimes(a, offsets, now) {
		for _, ch := range channels {
			if ch.recipient == "" {
				continue
			}
			evt, err := outbox.NewEvent(ctx, aggregateAppointment, a.ID, EventReminderRequested, ReminderRequested{
				AppointmentID: a.ID,
				Channel:       ch.name,
				Recipient:     ch.recipient,
				RemindAt:      at.UTC().Format(time.RFC3339),
				StartTime:     a.StartTime.UTC().Format(time.RFC3339),
				PatientName:   a.PatientName,
				TypeName:      typeName,
			})
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		}
	}
	return events, nil
}
