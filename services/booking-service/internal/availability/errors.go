package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
)

var (
	ErrClinicClosed   = errors.New("clinic closed")
	ErrNoTypeSelected = errors.New("appointment type required")
	ErrSlotConflict   = errors.New("slot conflict")
	ErrOutsideHours   = errors.New("slot outside working hours")
)

// ConflictError carries the appointment that collides with a requested slot.
type ConflictError struct {
	Slot Interval
	With model.Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s-%s conflicts with appointment %s (patient %s, %s-%s)",
		e.Slot.Start.Format("15:04"), e.Slot.End.Format("15:04"),
		e.With.ID, e.With.PatientID,
		e.With.StartTime.Format("15:04"), e.With.EndTime.Format("15:04"))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

// ValidateBooking re-checks slot against the current appointments of the day. It returns a
// *ConflictError for the first non-cancelled appointment that overlaps.
func ValidateBooking(slot Interval, appointments []model.Appointment) error {
	if a, ok := firstOverlap(slot, appointments); ok {
		return &ConflictError{Slot: slot, With: a}
	}
	return nil
}

// CheckWithinHours verifies that slot starts on the step grid of an open day and ends by
// closing.
func CheckWithinHours(slot Interval, day DayHours, step time.Duration) error {
	if !day.IsOpen {
		return ErrClinicClosed
	}
	if slot.Start.Before(day.Start) || slot.End.After(day.End) || !slot.End.After(slot.Start) {
		return ErrOutsideHours
	}
	if step > 0 && slot.Start.Sub(day.Start)%step != 0 {
		return ErrOutsideHours
	}
	return nil
}
