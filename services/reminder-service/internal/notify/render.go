package notify

import (
	"fmt"
	"strings"
	"time"
)

// Reminder carries what a reminder message mentions.
type Reminder struct {
	Channel     string
	Recipient   string
	PatientName string
	TypeName    string
	StartTime   time.Time
}

type Renderer struct {
	ClinicName string
	Location   *time.Location
}

// Render builds the message for r. Times are shown in the clinic's time zone. SMS bodies omit
// the greeting to stay within one segment where possible.
func (rd Renderer) Render(r Reminder) Message {
	loc := rd.Location
	if loc == nil {
		loc = time.UTC
	}
	clinic := strings.TrimSpace(rd.ClinicName)
	if clinic == "" {
		clinic = "your dental clinic"
	}
	what := "dental appointment"
	if t := strings.TrimSpace(r.TypeName); t != "" {
		what = strings.ToLower(t) + " appointment"
	}
	start := r.StartTime.In(loc)
	when := start.Format("Mon 2 Jan 2006") + " at " + start.Format("15:04")

	msg := Message{
		Channel:   r.Channel,
		Recipient: r.Recipient,
		Name:      strings.TrimSpace(r.PatientName),
		Subject:   "Appointment reminder: " + start.Format("Mon 2 Jan 15:04"),
	}
	if strings.EqualFold(r.Channel, ChannelSMS) {
		msg.Body = fmt.Sprintf("Reminder: %s at %s on %s.", what, clinic, when)
		return msg
	}
	greeting := "Hello"
	if msg.Name != "" {
		greeting = "Hello " + msg.Name
	}
	msg.Body = fmt.Sprintf("%s,\n\nThis is a reminder of your %s at %s on %s.\n\nIf you cannot attend, please contact the clinic to reschedule.\n",
		greeting, what, clinic, when)
	return msg
}
