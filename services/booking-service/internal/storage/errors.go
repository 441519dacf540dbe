package storage

import (
	"errors"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned when the store itself rejects an appointment that overlaps a
	// non-cancelled one.
	ErrOverlap   = errors.New("appointment overlaps an existing appointment")
	ErrDuplicate = errors.New("duplicate")
)

// EventsFunc builds the outbox events for an appointment change. It runs inside the store
// transaction with the appointment as it is after the change.
type EventsFunc func(model.Appointment) ([]outbox.Event, error)
