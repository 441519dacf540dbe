package availability

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		if s == "24:00" {
			return minutesPerDay, nil
		}
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= minutesPerDay
}

// On returns the instant of c on day's calendar date in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}
