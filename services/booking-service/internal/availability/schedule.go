package availability

import (
	"fmt"
	"time"
)

// WorkingHours are a clinic's opening hours for one weekday. When IsOpen is false Start and
// End are ignored.
type WorkingHours struct {
	IsOpen bool
	Start  Clock
	End    Clock
}

func (h WorkingHours) Validate() error {
	if !h.IsOpen {
		return nil
	}
	if !h.Start.Valid() || !h.End.Valid() {
		return fmt.Errorf("hours out of range: %s-%s", h.Start, h.End)
	}
	if h.Start >= h.End {
		return fmt.Errorf("opening time %s must be before closing time %s", h.Start, h.End)
	}
	return nil
}

// On anchors the hours to a calendar day.
func (h WorkingHours) On(day time.Time) DayHours {
	if !h.IsOpen {
		return DayHours{Date: day}
	}
	return DayHours{
		IsOpen: true,
		Date:   day,
		Start:  h.Start.On(day),
		End:    h.End.On(day),
	}
}

// WeeklySchedule is indexed by time.Weekday.
type WeeklySchedule [7]WorkingHours

func (w WeeklySchedule) For(day time.Weekday) WorkingHours {
	return w[day]
}

// DefaultWeeklySchedule is Monday to Friday 09:00-17:00, closed on weekends.
func DefaultWeeklySchedule() WeeklySchedule {
	var w WeeklySchedule
	for d := time.Monday; d <= time.Friday; d++ {
		w[d] = WorkingHours{IsOpen: true, Start: 9 * 60, End: 17 * 60}
	}
	return w
}

// DayHours are working hours resolved to absolute instants on one date.
type DayHours struct {
	IsOpen bool
	Date   time.Time
	Start  time.Time
	End    time.Time
}
