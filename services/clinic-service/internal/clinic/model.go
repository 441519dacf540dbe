package clinic

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidHours  = errors.New("invalid working hours")
	ErrInvalidType   = errors.New("invalid appointment type")
	ErrDuplicateType = errors.New("appointment type already exists")
	ErrCacheMiss     = errors.New("cache miss")
)

const minutesPerDay = 24 * 60

// WorkingHours is the opening window of one weekday in minutes after midnight.
type WorkingHours struct {
	Weekday     time.Weekday
	IsOpen      bool
	StartMinute int
	EndMinute   int
}

func (h WorkingHours) Validate() error {
	if h.Weekday < time.Sunday || h.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidHours, h.Weekday)
	}
	if !h.IsOpen {
		return nil
	}
	if h.StartMinute < 0 || h.EndMinute > minutesPerDay || h.StartMinute >= h.EndMinute {
		return fmt.Errorf("%w: %s opens %s and closes %s", ErrInvalidHours, h.Weekday,
			FormatMinute(h.StartMinute), FormatMinute(h.EndMinute))
	}
	return nil
}

// ClosedDay is the stored form of a weekday without opening hours.
func ClosedDay(day time.Weekday) WorkingHours {
	return WorkingHours{Weekday: day}
}

// DefaultWeek is Monday to Friday 09:00-17:00.
func DefaultWeek() []WorkingHours {
	week := make([]WorkingHours, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		week[d] = ClosedDay(d)
		if d >= time.Monday && d <= time.Friday {
			week[d] = WorkingHours{Weekday: d, IsOpen: true, StartMinute: 9 * 60, EndMinute: 17 * 60}
		}
	}
	return week
}

// FormatMinute renders minutes after midnight as "HH:MM".
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseMinute parses "HH:MM". "24:00" is accepted as end of day.
func ParseMinute(s string) (int, error) {
	if s == "24:00" {
		return minutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q", ErrInvalidHours, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

type AppointmentType struct {
	ID              string
	Name            string
	DurationMinutes int
	Color           string
	CreatedAt       time.Time
}

func (t AppointmentType) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: id required", ErrInvalidType)
	case t.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalidType)
	case t.DurationMinutes <= 0 || t.DurationMinutes > minutesPerDay:
		return fmt.Errorf("%w: duration_minutes must be between 1 and %d", ErrInvalidType, minutesPerDay)
	}
	return nil
}
