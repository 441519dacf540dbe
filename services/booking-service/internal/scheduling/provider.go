package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
)

var ErrTypeNotFound = errors.New("appointment type not found")

// Provider supplies clinic opening hours and the appointment-type catalogue.
type Provider interface {
	WorkingHours(ctx context.Context, day time.Weekday) (availability.WorkingHours, error)
	AppointmentTypes(ctx context.Context) ([]model.AppointmentType, error)
}

// FindType looks up an appointment type by id.
func FindType(ctx context.Context, p Provider, id string) (model.AppointmentType, error) {
	types, err := p.AppointmentTypes(ctx)
	if err != nil {
		return model.AppointmentType{}, err
	}
	for _, t := range types {
		if t.ID == id {
			return t, nil
		}
	}
	return model.AppointmentType{}, ErrTypeNotFound
}

type staticProvider struct {
	week  availability.WeeklySchedule
	types []model.AppointmentType
}

// NewStaticProvider serves a fixed schedule. It backs local development and acts as the
// fallback when no clinic service address is configured.
func NewStaticProvider(week availability.WeeklySchedule, types []model.AppointmentType) Provider {
	return &staticProvider{week: week, types: types}
}

func (p *staticProvider) WorkingHours(_ context.Context, day time.Weekday) (availability.WorkingHours, error) {
	return p.week.For(day), nil
}

func (p *staticProvider) AppointmentTypes(context.Context) ([]model.AppointmentType, error) {
	out := make([]model.AppointmentType, len(p.types))
	copy(out, p.types)
	return out, nil
}

// DefaultAppointmentTypes is the catalogue a new practice starts with.
func DefaultAppointmentTypes() []model.AppointmentType {
	return []model.AppointmentType{
		{ID: "checkup", Name: "Checkup", DurationMinutes: 30, Color: "#4caf50"},
		{ID: "cleaning", Name: "Cleaning", DurationMinutes: 45, Color: "#2196f3"},
		{ID: "filling", Name: "Filling", DurationMinutes: 60, Color: "#ff9800"},
		{ID: "root-canal", Name: "Root canal", DurationMinutes: 90, Color: "#f44336"},
		{ID: "consultation", Name: "Consultation", DurationMinutes: 15, Color: "#9c27b0"},
	}
}
