package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/scheduling"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/storage"
)

var (
	ErrStoreFailure        = errors.New("appointment store failure")
	ErrScheduleUnavailable = errors.New("clinic schedule unavailable")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("appointment not found")
	ErrSlotInPast          = errors.New("slot start is in the past")
)

// Store is the appointment store the service books against.
type Store interface {
	ListForDate(ctx context.Context, date string) ([]model.Appointment, error)
	ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (model.Appointment, error)
	Create(ctx context.Context, appt model.Appointment, idempotencyKey string, events []outbox.Event) error
	Transition(ctx context.Context, id string, to model.Status, reason string, events storage.EventsFunc) (model.Appointment, error)
	Delete(ctx context.Context, id string, events storage.EventsFunc) (model.Appointment, error)
}

type Config struct {
	// Location is the clinic's time zone. Dates and HH:MM times are read in it.
	Location        *time.Location
	Step            time.Duration
	ReminderOffsets []time.Duration
	Now             func() time.Time
}

type Service struct {
	store    Store
	schedule scheduling.Provider
	logger   *slog.Logger
	metrics  *Metrics
	loc      *time.Location
	step     time.Duration
	offsets  []time.Duration
	now      func() time.Time
}

func NewService(store Store, schedule scheduling.Provider, logger *slog.Logger, metrics *Metrics, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Step <= 0 {
		cfg.Step = availability.DefaultStep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    store,
		schedule: schedule,
		logger:   logger,
		metrics:  metrics,
		loc:      cfg.Location,
		step:     cfg.Step,
		offsets:  cfg.ReminderOffsets,
		now:      cfg.Now,
	}
}

// DayView is the slot grid of one day for one appointment type.
type DayView struct {
	Date   string
	Open   bool
	Reason string
	Type   model.AppointmentType
	Slots  []availability.Slot
}

// DaySlots evaluates every bookable start of date for typeID. A closed day is not an error: the
// view comes back with Open=false and a reason. selected is an optional "HH:MM".
func (s *Service) DaySlots(ctx context.Context, date, typeID, selected string) (DayView, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return DayView{}, err
	}
	view := DayView{Date: date}

	dayHours, err := s.dayHours(ctx, day)
	if err != nil {
		return DayView{}, err
	}
	if !dayHours.IsOpen {
		view.Reason = availability.ErrClinicClosed.Error()
		return view, nil
	}
	view.Open = true

	typ, err := s.appointmentType(ctx, typeID)
	if err != nil {
		return DayView{}, err
	}
	view.Type = typ

	var sel time.Time
	if strings.TrimSpace(selected) != "" {
		c, err := availability.ParseClock(selected)
		if err != nil {
			return DayView{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		sel = c.On(day)
	}

	appts, err := s.store.ListForDate(ctx, date)
	if err != nil {
		return DayView{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	view.Slots = availability.Evaluate(dayHours, typ.Duration(), s.step, appts, sel)
	s.metrics.slotQuery()
	return view, nil
}

type BookRequest struct {
	PatientID      string
	TypeID         string
	Date           string
	StartTime      string
	Notes          string
	ReminderTime   *time.Time
	PatientName    string
	PatientEmail   string
	PatientPhone   string
	IdempotencyKey string
}

type BookResult struct {
	Appointment model.Appointment
	// Replayed is set when an earlier request with the same idempotency key already booked.
	Replayed bool
}

// Book validates the requested slot against the clinic hours and the current appointments of the
// day and creates the appointment in Scheduled status with its outbox events. Nothing is written
// when any check fails.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	res, err := s.book(ctx, req)
	switch {
	case err == nil && res.Replayed:
		s.metrics.booking("replayed")
	case err == nil:
		s.metrics.booking("booked")
	case errors.Is(err, availability.ErrSlotConflict):
		s.metrics.booking("conflict")
	case errors.Is(err, ErrStoreFailure), errors.Is(err, ErrScheduleUnavailable):
		s.metrics.booking("error")
	default:
		s.metrics.booking("rejected")
	}
	return res, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (BookResult, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return BookResult{Appointment: existing, Replayed: true}, nil
		case !errors.Is(err, storage.ErrNotFound):
			return BookResult{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
		}
	}

	if strings.TrimSpace(req.PatientID) == "" {
		return BookResult{}, fmt.Errorf("%w: patient_id required", ErrInvalidRequest)
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return BookResult{}, err
	}
	startClock, err := availability.ParseClock(req.StartTime)
	if err != nil {
		return BookResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	typ, err := s.appointmentType(ctx, req.TypeID)
	if err != nil {
		return BookResult{}, err
	}
	dayHours, err := s.dayHours(ctx, day)
	if err != nil {
		return BookResult{}, err
	}

	start := startClock.On(day)
	slot := availability.Interval{Start: start, End: start.Add(typ.Duration())}
	if err := availability.CheckWithinHours(slot, dayHours, s.step); err != nil {
		return BookResult{}, err
	}
	now := s.now()
	if start.Before(now) {
		return BookResult{}, ErrSlotInPast
	}

	appts, err := s.store.ListForDate(ctx, req.Date)
	if err != nil {
		return BookResult{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if err := availability.ValidateBooking(slot, appts); err != nil {
		s.metrics.conflict("validate")
		return BookResult{}, err
	}

	appt := model.Appointment{
		ID:           uuid.NewString(),
		PatientID:    strings.TrimSpace(req.PatientID),
		TypeID:       typ.ID,
		Date:         req.Date,
		StartTime:    slot.Start,
		EndTime:      slot.End,
		Status:       model.StatusScheduled,
		Notes:        req.Notes,
		ReminderTime: req.ReminderTime,
		PatientName:  strings.TrimSpace(req.PatientName),
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}

	booked, err := appointmentEvent(ctx, EventAppointmentBooked, appt, now)
	if err != nil {
		return BookResult{}, err
	}
	reminders, err := reminderEvents(ctx, appt, typ.Name, s.offsets, now)
	if err != nil {
		return BookResult{}, err
	}

	err = s.store.Create(ctx, appt, req.IdempotencyKey, append([]outbox.Event{booked}, reminders...))
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrOverlap):
		s.metrics.conflict("store")
		return BookResult{}, s.storeConflict(ctx, req.Date, slot)
	case errors.Is(err, storage.ErrDuplicate) && req.IdempotencyKey != "":
		existing, ferr := s.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if ferr != nil {
			return BookResult{}, fmt.Errorf("%w: %w", ErrStoreFailure, ferr)
		}
		return BookResult{Appointment: existing, Replayed: true}, nil
	default:
		return BookResult{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"date", appt.Date,
		"start", startClock.String(),
		"type_id", appt.TypeID,
		"reminders", len(reminders),
	)
	return BookResult{Appointment: appt}, nil
}

// storeConflict builds the conflict error after the store rejected an overlapping insert that
// passed validation, i.e. a concurrent booking won the race.
func (s *Service) storeConflict(ctx context.Context, date string, slot availability.Interval) error {
	appts, err := s.store.ListForDate(ctx, date)
	if err == nil {
		if cerr := availability.ValidateBooking(slot, appts); cerr != nil {
			return cerr
		}
	}
	return &availability.ConflictError{Slot: slot}
}

func (s *Service) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusCompleted, "", EventAppointmentCompleted)
}

func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	return s.transition(ctx, id, model.StatusCancelled, reason, EventAppointmentCancelled)
}

func (s *Service) transition(ctx context.Context, id string, to model.Status, reason, eventType string) (model.Appointment, error) {
	now := s.now()
	appt, err := s.store.Transition(ctx, id, to, reason, func(a model.Appointment) ([]outbox.Event, error) {
		evt, err := appointmentEvent(ctx, eventType, a, now)
		if err != nil {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	})
	if err != nil {
		return model.Appointment{}, s.storeError(err)
	}
	s.metrics.transition(string(to))
	s.logger.Info("appointment status changed", "appointment_id", id, "status", to)
	return appt, nil
}

// Delete removes the appointment whatever its status.
func (s *Service) Delete(ctx context.Context, id string) error {
	now := s.now()
	_, err := s.store.Delete(ctx, id, func(a model.Appointment) ([]outbox.Event, error) {
		evt, err := appointmentEvent(ctx, EventAppointmentDeleted, a, now)
		if err != nil {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	})
	if err != nil {
		return s.storeError(err)
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, s.storeError(err)
	}
	return appt, nil
}

func (s *Service) ListForDate(ctx context.Context, date string) ([]model.Appointment, error) {
	if _, err := s.parseDate(date); err != nil {
		return nil, err
	}
	appts, err := s.store.ListForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return appts, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	appts, err := s.store.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return appts, nil
}

func (s *Service) AppointmentTypes(ctx context.Context) ([]model.AppointmentType, error) {
	types, err := s.schedule.AppointmentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScheduleUnavailable, err)
	}
	return types, nil
}

func (s *Service) storeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
}

func (s *Service) parseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return day, nil
}

func (s *Service) dayHours(ctx context.Context, day time.Time) (availability.DayHours, error) {
	hours, err := s.schedule.WorkingHours(ctx, day.Weekday())
	if err != nil {
		return availability.DayHours{}, fmt.Errorf("%w: %w", ErrScheduleUnavailable, err)
	}
	return hours.On(day), nil
}

func (s *Service) appointmentType(ctx context.Context, typeID string) (model.AppointmentType, error) {
	if strings.TrimSpace(typeID) == "" {
		return model.AppointmentType{}, availability.ErrNoTypeSelected
	}
	typ, err := scheduling.FindType(ctx, s.schedule, typeID)
	switch {
	case errors.Is(err, scheduling.ErrTypeNotFound):
		return model.AppointmentType{}, fmt.Errorf("%w: unknown appointment type %q", ErrInvalidRequest, typeID)
	case err != nil:
		return model.AppointmentType{}, fmt.Errorf("%w: %w", ErrScheduleUnavailable, err)
	}
	return typ, nil
}
