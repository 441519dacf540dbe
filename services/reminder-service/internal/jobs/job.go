package jobs

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound = errors.New("reminder job not found")
	// ErrAppointmentClosed is returned by Insert once the appointment was cancelled, completed
	// or deleted.
	ErrAppointmentClosed = errors.New("appointment closed")
)

// Job is one reminder to deliver on one channel.
type Job struct {
	ID            int64
	Key           string
	AppointmentID string
	Channel       string
	Recipient     string
	RemindAt      time.Time
	StartTime     time.Time
	PatientName   string
	TypeName      string
	Traceparent   string
	Tracestate    string
	Status        Status
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
	LastError     string
	ProviderID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobKey identifies a reminder so redelivered requests collapse into one job.
func JobKey(appointmentID, channel string, remindAt time.Time) string {
	return strings.Join([]string{appointmentID, remindAt.UTC().Format(time.RFC3339), strings.ToLower(channel)}, "|")
}
