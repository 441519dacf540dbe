package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
)

// MemoryStore keeps appointments, deposits and outbox events in process memory. It enforces the
// same overlap and idempotency rules as the PostgreSQL schema and serves tests and
// BOOKING_STORE=memory.
type MemoryStore struct {
	// claimMu serializes outbox claims; mu guards the data and is not held while publishing.
	claimMu sync.Mutex

	mu       sync.Mutex
	appts    map[string]model.Appointment
	idem     map[string]string
	deposits map[string]Deposit
	outbox   []outbox.Record
	seq      int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts:    map[string]model.Appointment{},
		idem:     map[string]string{},
		deposits: map[string]Deposit{},
		now:      time.Now,
	}
}

func (s *MemoryStore) ListForDate(_ context.Context, date string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(a model.Appointment) bool { return a.Date == date }, true), nil
}

func (s *MemoryStore) ListForPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(a model.Appointment) bool { return a.PatientID == patientID }, false), nil
}

func (s *MemoryStore) filter(keep func(model.Appointment) bool, ascending bool) []model.Appointment {
	var out []model.Appointment
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[s.idem[key]]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Create(_ context.Context, appt model.Appointment, idempotencyKey string, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if _, ok := s.idem[idempotencyKey]; ok {
			return ErrDuplicate
		}
	}
	if _, ok := s.appts[appt.ID]; ok {
		return ErrDuplicate
	}
	if appt.Status.Blocks() {
		for _, a := range s.appts {
			if a.Status.Blocks() && appt.StartTime.Before(a.EndTime) && a.StartTime.Before(appt.EndTime) {
				return ErrOverlap
			}
		}
	}
	s.appts[appt.ID] = appt
	if idempotencyKey != "" {
		s.idem[idempotencyKey] = appt.ID
	}
	s.append(events)
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to model.Status, reason string, events EventsFunc) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if !appt.Status.CanTransitionTo(to) {
		return model.Appointment{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, appt.Status, to)
	}
	appt.Status = to
	if to == model.StatusCancelled {
		appt.CancelReason = reason
	}
	appt.UpdatedAt = s.now().UTC()

	evts, err := build(appt, events)
	if err != nil {
		return model.Appointment{}, err
	}
	s.appts[id] = appt
	s.append(evts)
	return appt, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string, events EventsFunc) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	evts, err := build(appt, events)
	if err != nil {
		return model.Appointment{}, err
	}
	delete(s.appts, id)
	for k, v := range s.idem {
		if v == id {
			delete(s.idem, k)
		}
	}
	s.append(evts)
	return appt, nil
}

func (s *MemoryStore) RecordDeposit(_ context.Context, d Deposit, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deposits[d.ProviderEventID]; ok {
		return ErrDuplicate
	}
	s.deposits[d.ProviderEventID] = d
	s.append(events)
	return nil
}

func (s *MemoryStore) DepositsForAppointment(_ context.Context, appointmentID string) ([]Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Deposit
	for _, d := range s.deposits {
		if d.AppointmentID == appointmentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Claim implements outbox.Source. fn runs without the store lock, so bookings proceed while a
// batch is being published.
func (s *MemoryStore) Claim(_ context.Context, limit int, fn func([]outbox.Record) error) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	s.mu.Lock()
	n := min(limit, len(s.outbox))
	batch := make([]outbox.Record, n)
	copy(batch, s.outbox[:n])
	s.mu.Unlock()
	if n == 0 {
		return nil
	}

	if err := fn(batch); err != nil {
		return err
	}

	last := batch[n-1].Seq
	s.mu.Lock()
	defer s.mu.Unlock()
	i := 0
	for i < len(s.outbox) && s.outbox[i].Seq <= last {
		i++
	}
	s.outbox = s.outbox[i:]
	return nil
}

// Pending returns the unpublished outbox events.
func (s *MemoryStore) Pending() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Event, 0, len(s.outbox))
	for _, r := range s.outbox {
		out = append(out, r.Event)
	}
	return out
}

func (s *MemoryStore) append(events []outbox.Event) {
	for _, e := range events {
		s.seq++
		s.outbox = append(s.outbox, outbox.Record{Seq: s.seq, Event: e, CreatedAt: s.now().UTC()})
	}
}

func build(appt model.Appointment, events EventsFunc) ([]outbox.Event, error) {
	if events == nil {
		return nil, nil
	}
	return events(appt)
}
