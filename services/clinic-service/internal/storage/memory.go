package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
)

// Memory is an in-process Store seeded with the default week. It serves tests and
// CLINIC_STORE=memory.
type Memory struct {
	mu    sync.Mutex
	hours map[time.Weekday]clinic.WorkingHours
	types map[string]clinic.AppointmentType
}

func NewMemory(types ...clinic.AppointmentType) *Memory {
	m := &Memory{
		hours: map[time.Weekday]clinic.WorkingHours{},
		types: map[string]clinic.AppointmentType{},
	}
	for _, h := range clinic.DefaultWeek() {
		m.hours[h.Weekday] = h
	}
	for _, t := range types {
		m.types[t.ID] = t
	}
	return m
}

func (m *Memory) WeeklyHours(context.Context) ([]clinic.WorkingHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]clinic.WorkingHours, 0, len(m.hours))
	for _, h := range m.hours {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (m *Memory) UpsertHours(_ context.Context, hours []clinic.WorkingHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hours {
		m.hours[h.Weekday] = h
	}
	return nil
}

func (m *Memory) ListTypes(context.Context) ([]clinic.AppointmentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]clinic.AppointmentType, 0, len(m.types))
	for _, t := range m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateType(_ context.Context, t clinic.AppointmentType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[t.ID]; ok {
		return clinic.ErrDuplicateType
	}
	m.types[t.ID] = t
	return nil
}

// DefaultTypes is the catalogue seeded by the initial migration.
func DefaultTypes() []clinic.AppointmentType {
	return []clinic.AppointmentType{
		{ID: "checkup", Name: "Checkup", DurationMinutes: 30, Color: "#4caf50"},
		{ID: "cleaning", Name: "Cleaning", DurationMinutes: 45, Color: "#2196f3"},
		{ID: "filling", Name: "Filling", DurationMinutes: 60, Color: "#ff9800"},
		{ID: "root-canal", Name: "Root canal", DurationMinutes: 90, Color: "#f44336"},
		{ID: "consultation", Name: "Consultation", DurationMinutes: 15, Color: "#9c27b0"},
	}
}
