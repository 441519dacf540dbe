package clinic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists the clinic schedule.
type Store interface {
	WeeklyHours(ctx context.Context) ([]WorkingHours, error)
	UpsertHours(ctx context.Context, hours []WorkingHours) error
	ListTypes(ctx context.Context) ([]AppointmentType, error)
	CreateType(ctx context.Context, t AppointmentType) error
}

// Cache is a read-through cache in front of the Store. Lookups return ErrCacheMiss when the
// entry is absent.
type Cache interface {
	GetHours(ctx context.Context) ([]WorkingHours, error)
	SetHours(ctx context.Context, hours []WorkingHours) error
	GetTypes(ctx context.Context) ([]AppointmentType, error)
	SetTypes(ctx context.Context, types []AppointmentType) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewService wires the schedule. cache may be nil.
func NewService(store Store, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// WeeklyHours returns seven entries ordered Sunday to Saturday. Days without a stored row are
// closed.
func (s *Service) WeeklyHours(ctx context.Context) ([]WorkingHours, error) {
	cached, err := s.cache.GetHours(ctx)
	if err == nil {
		return cached, nil
	}
	s.cacheError("get hours", err)

	stored, err := s.store.WeeklyHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	week := make([]WorkingHours, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		week[d] = ClosedDay(d)
	}
	for _, h := range stored {
		if h.Weekday >= time.Sunday && h.Weekday <= time.Saturday {
			week[h.Weekday] = h
		}
	}
	s.cacheError("set hours", s.cache.SetHours(ctx, week))
	return week, nil
}

func (s *Service) HoursFor(ctx context.Context, day time.Weekday) (WorkingHours, error) {
	if day < time.Sunday || day > time.Saturday {
		return WorkingHours{}, fmt.Errorf("%w: weekday %d", ErrInvalidHours, day)
	}
	week, err := s.WeeklyHours(ctx)
	if err != nil {
		return WorkingHours{}, err
	}
	return week[day], nil
}

// UpdateHours replaces the hours of the given weekdays and returns the resulting week.
func (s *Service) UpdateHours(ctx context.Context, hours []WorkingHours) ([]WorkingHours, error) {
	if len(hours) == 0 {
		return nil, fmt.Errorf("%w: no days given", ErrInvalidHours)
	}
	seen := map[time.Weekday]bool{}
	for i, h := range hours {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if seen[h.Weekday] {
			return nil, fmt.Errorf("%w: %s given twice", ErrInvalidHours, h.Weekday)
		}
		seen[h.Weekday] = true
		if !h.IsOpen {
			hours[i] = ClosedDay(h.Weekday)
		}
	}
	if err := s.store.UpsertHours(ctx, hours); err != nil {
		return nil, fmt.Errorf("save working hours: %w", err)
	}
	s.cacheError("invalidate", s.cache.Invalidate(ctx))
	s.logger.Info("working hours updated", "days", len(hours))
	return s.WeeklyHours(ctx)
}

// AppointmentTypes returns the catalogue ordered by name.
func (s *Service) AppointmentTypes(ctx context.Context) ([]AppointmentType, error) {
	cached, err := s.cache.GetTypes(ctx)
	if err == nil {
		return cached, nil
	}
	s.cacheError("get types", err)

	types, err := s.store.ListTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load appointment types: %w", err)
	}
	sort.SliceStable(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	s.cacheError("set types", s.cache.SetTypes(ctx, types))
	return types, nil
}

// CreateAppointmentType adds a catalogue entry. An empty id gets a generated one.
func (s *Service) CreateAppointmentType(ctx context.Context, t AppointmentType) (AppointmentType, error) {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return AppointmentType{}, err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := s.store.CreateType(ctx, t); err != nil {
		if errors.Is(err, ErrDuplicateType) {
			return AppointmentType{}, err
		}
		return AppointmentType{}, fmt.Errorf("save appointment type: %w", err)
	}
	s.cacheError("invalidate", s.cache.Invalidate(ctx))
	s.logger.Info("appointment type created", "type_id", t.ID, "duration_minutes", t.DurationMinutes)
	return t, nil
}

func (s *Service) cacheError(op string, err error) {
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("schedule cache error", "op", op, "err", err)
	}
}

type noCache struct{}

func (noCache) GetHours(context.Context) ([]WorkingHours, error) { return nil, ErrCacheMiss }
func (noCache) SetHours(context.Context, []WorkingHours) error { return nil }
func (noCache) GetTypes(context.Context) ([]AppointmentType, error) { return nil, ErrCacheMiss }
func (noCache) SetTypes(context.Context, []AppointmentType) error { return nil }
func (noCache) Invalidate(context.Context) error { return nil }
