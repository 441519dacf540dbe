package availability

import (
	"time"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
)

// DefaultStep is the spacing of candidate start times.
const DefaultStep = 15 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps treats both intervals as half-open, so back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

type SlotStatus string

const (
	StatusAvailable   SlotStatus = "available"
	StatusSelected    SlotStatus = "selected"
	StatusBooked      SlotStatus = "booked"
	StatusCompleted   SlotStatus = "completed"
	StatusUnavailable SlotStatus = "unavailable"
)

type Slot struct {
	Start  time.Time
	End    time.Time
	Status SlotStatus
}

// CandidateStarts returns start times from day.Start (inclusive) to day.End (exclusive) every
// step. A closed day has none.
func CandidateStarts(day DayHours, step time.Duration) []time.Time {
	if !day.IsOpen || step <= 0 || !day.End.After(day.Start) {
		return nil
	}
	var starts []time.Time
	for t := day.Start; t.Before(day.End); t = t.Add(step) {
		starts = append(starts, t)
	}
	return starts
}

// FittingStarts drops every start whose appointment of the given duration would end after
// closing.
func FittingStarts(starts []time.Time, duration time.Duration, closing time.Time) []time.Time {
	out := make([]time.Time, 0, len(starts))
	for _, s := range starts {
		if s.Add(duration).After(closing) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Classify reports the status of a slot of duration starting at start. A zero selected means
// nothing is selected.
func Classify(start time.Time, duration time.Duration, day DayHours, appointments []model.Appointment, selected time.Time) SlotStatus {
	slot := Interval{Start: start, End: start.Add(duration)}
	if !day.IsOpen || slot.End.After(day.End) {
		return StatusUnavailable
	}
	if a, ok := firstOverlap(slot, appointments); ok {
		if a.Status == model.StatusCompleted {
			return StatusCompleted
		}
		return StatusBooked
	}
	if !selected.IsZero() && start.Equal(selected) {
		return StatusSelected
	}
	return StatusAvailable
}

// Evaluate lists every fitting slot of the day with its status.
func Evaluate(day DayHours, duration, step time.Duration, appointments []model.Appointment, selected time.Time) []Slot {
	if duration <= 0 {
		return nil
	}
	starts := FittingStarts(CandidateStarts(day, step), duration, day.End)
	slots := make([]Slot, 0, len(starts))
	for _, s := range starts {
		slots = append(slots, Slot{
			Start:  s,
			End:    s.Add(duration),
			Status: Classify(s, duration, day, appointments, selected),
		})
	}
	return slots
}

func firstOverlap(slot Interval, appointments []model.Appointment) (model.Appointment, bool) {
	for _, a := range appointments {
		if !a.Status.Blocks() {
			continue
		}
		if slot.Overlaps(Interval{Start: a.StartTime, End: a.EndTime}) {
			return a, true
		}
	}
	return model.Appointment{}, false
}
