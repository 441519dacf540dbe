package clinic_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/storage"
)

type countingStore struct {
	*storage.Memory
	hourReads int
	typeReads int
}

func (s *countingStore) WeeklyHours(ctx context.Context) ([]clinic.WorkingHours, error) {
	s.hourReads++
	return s.Memory.WeeklyHours(ctx)
}

func (s *countingStore) ListTypes(ctx context.Context) ([]clinic.AppointmentType, error) {
	s.typeReads++
	return s.Memory.ListTypes(ctx)
}

type mapCache struct {
	hours       []clinic.WorkingHours
	types       []clinic.AppointmentType
	invalidated int
}

func (c *mapCache) GetHours(context.Context) ([]clinic.WorkingHours, error) {
	if c.hours == nil {
		return nil, clinic.ErrCacheMiss
	}
	return c.hours, nil
}

func (c *mapCache) SetHours(_ context.Context, h []clinic.WorkingHours) error {
	c.hours = h
	return nil
}

func (c *mapCache) GetTypes(context.Context) ([]clinic.AppointmentType, error) {
	if c.types == nil {
		return nil, clinic.ErrCacheMiss
	}
	return c.types, nil
}

func (c *mapCache) SetTypes(_ context.Context, t []clinic.AppointmentType) error {
	c.types = t
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.invalidated++
	c.hours, c.types = nil, nil
	return nil
}

func newService(store clinic.Store, cache clinic.Cache) *clinic.Service {
	return clinic.NewService(store, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWeeklyHoursDefaultsAndCache(t *testing.T) {
	store := &countingStore{Memory: storage.NewMemory()}
	cache := &mapCache{}
	svc := newService(store, cache)
	ctx := context.Background()

	week, err := svc.WeeklyHours(ctx)
	if err != nil {
		t.Fatalf("WeeklyHours failed: %v", err)
	}
	if len(week) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week))
	}
	if week[time.Sunday].IsOpen || week[time.Saturday].IsOpen {
		t.Fatal("expected weekend closed")
	}
	if mon := week[time.Monday]; !mon.IsOpen || mon.StartMinute != 540 || mon.EndMinute != 1020 {
		t.Fatalf("unexpected monday %+v", mon)
	}

	if _, err := svc.HoursFor(ctx, time.Tuesday); err != nil {
		t.Fatalf("HoursFor failed: %v", err)
	}
	if store.hourReads != 1 {
		t.Fatalf("expected one store read thanks to the cache, got %d", store.hourReads)
	}
}

func TestUpdateHoursInvalidatesCache(t *testing.T) {
	store := &countingStore{Memory: storage.NewMemory()}
	cache := &mapCache{}
	svc := newService(store, cache)
	ctx := context.Background()

	if _, err := svc.WeeklyHours(ctx); err != nil {
		t.Fatalf("WeeklyHours failed: %v", err)
	}
	week, err := svc.UpdateHours(ctx, []clinic.WorkingHours{
		{Weekday: time.Saturday, IsOpen: true, StartMinute: 8 * 60, EndMinute: 12 * 60},
		{Weekday: time.Friday, IsOpen: false, StartMinute: 600, EndMinute: 700},
	})
	if err != nil {
		t.Fatalf("UpdateHours failed: %v", err)
	}
	if cache.invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", cache.invalidated)
	}
	if sat := week[time.Saturday]; !sat.IsOpen || sat.StartMinute != 480 {
		t.Fatalf("saturday not updated: %+v", sat)
	}
	if fri := week[time.Friday]; fri.IsOpen || fri.StartMinute != 0 {
		t.Fatalf("closed day should be stored without hours: %+v", fri)
	}
}

func TestUpdateHoursValidation(t *testing.T) {
	svc := newService(storage.NewMemory(), nil)
	ctx := context.Background()

	cases := map[string][]clinic.WorkingHours{
		"empty":         nil,
		"start>=end":    {{Weekday: time.Monday, IsOpen: true, StartMinute: 600, EndMinute: 600}},
		"past midnight": {{Weekday: time.Monday, IsOpen: true, StartMinute: 600, EndMinute: 1500}},
		"bad weekday":   {{Weekday: 9, IsOpen: false}},
		"duplicate": {
			{Weekday: time.Monday, IsOpen: false},
			{Weekday: time.Monday, IsOpen: false},
		},
	}
	for name, hours := range cases {
		if _, err := svc.UpdateHours(ctx, hours); !errors.Is(err, clinic.ErrInvalidHours) {
			t.Fatalf("%s: expected ErrInvalidHours, got %v", name, err)
		}
	}
}

func TestCreateAppointmentType(t *testing.T) {
	store := &countingStore{Memory: storage.NewMemory(storage.DefaultTypes()...)}
	cache := &mapCache{}
	svc := newService(store, cache)
	ctx := context.Background()

	types, err := svc.AppointmentTypes(ctx)
	if err != nil || len(types) != 5 {
		t.Fatalf("expected 5 default types, got %d (%v)", len(types), err)
	}

	created, err := svc.CreateAppointmentType(ctx, clinic.AppointmentType{Name: " Whitening ", DurationMinutes: 40, Color: "#ffffff"})
	if err != nil {
		t.Fatalf("CreateAppointmentType failed: %v", err)
	}
	if created.ID == "" || created.Name != "Whitening" {
		t.Fatalf("unexpected created type %+v", created)
	}
	types, _ = svc.AppointmentTypes(ctx)
	if len(types) != 6 || store.typeReads != 2 {
		t.Fatalf("expected fresh read after create, got %d types and %d reads", len(types), store.typeReads)
	}

	if _, err := svc.CreateAppointmentType(ctx, clinic.AppointmentType{ID: "checkup", Name: "Checkup", DurationMinutes: 30}); !errors.Is(err, clinic.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
	if _, err := svc.CreateAppointmentType(ctx, clinic.AppointmentType{Name: "Zero", DurationMinutes: 0}); !errors.Is(err, clinic.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestParseAndFormatMinute(t *testing.T) {
	m, err := clinic.ParseMinute("08:45")
	if err != nil || m != 525 {
		t.Fatalf("expected 525, got %d (%v)", m, err)
	}
	if m, err := clinic.ParseMinute("24:00"); err != nil || m != 1440 {
		t.Fatalf("expected 1440 for 24:00, got %d (%v)", m, err)
	}
	if _, err := clinic.ParseMinute("8am"); err == nil {
		t.Fatal("expected error for 8am")
	}
	if got := clinic.FormatMinute(1020); got != "17:00" {
		t.Fatalf("expected 17:00, got %s", got)
	}
}
