package model

import (
	"errors"
	"time"
)

// DateLayout is the wire and storage format of appointment dates.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid status transition")

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Blocks reports whether an appointment in this status occupies its time range.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

// CanTransitionTo allows only scheduled -> completed and scheduled -> cancelled.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusScheduled && (next == StatusCompleted || next == StatusCancelled)
}

type Appointment struct {
	ID           string
	PatientID    string
	TypeID       string
	Date         string
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	Notes        string
	ReminderTime *time.Time
	PatientName  string
	PatientEmail string
	PatientPhone string
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

type AppointmentType struct {
	ID              string
	Name            string
	DurationMinutes int
	Color           string
}

func (t AppointmentType) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}
