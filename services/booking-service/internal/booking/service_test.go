package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/scheduling"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/storage"
)

const monday = "2026-03-02"

var testNow = time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) (*Service, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(store,
		scheduling.NewStaticProvider(availability.DefaultWeeklySchedule(), scheduling.DefaultAppointmentTypes()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics,
		Config{
			Location:        time.UTC,
			ReminderOffsets: []time.Duration{24 * time.Hour, time.Hour},
			Now:             func() time.Time { return testNow },
		},
	)
	return svc, metrics
}

func checkup(start string) BookRequest {
	return BookRequest{
		PatientID:    "patient-1",
		TypeID:       "checkup",
		Date:         monday,
		StartTime:    start,
		PatientName:  "Ada",
		PatientEmail: "ada@example.com",
		PatientPhone: "+15550001",
	}
}

func TestBookCreatesScheduledAppointmentWithEvents(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, metrics := newTestService(t, store)

	res, err := svc.Book(context.Background(), checkup("10:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	appt := res.Appointment
	if appt.Status != model.StatusScheduled || appt.ID == "" {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if appt.EndTime.Sub(appt.StartTime) != 30*time.Minute {
		t.Fatalf("expected 30 minute checkup, got %s", appt.EndTime.Sub(appt.StartTime))
	}

	events := store.Pending()
	// booked + (2 offsets x 2 channels) reminders
	if len(events) != 5 {
		t.Fatalf("expected 5 outbox events, got %d", len(events))
	}
	if events[0].EventType != EventAppointmentBooked {
		t.Fatalf("expected booked event first, got %s", events[0].EventType)
	}
	var rem ReminderRequested
	if err := json.Unmarshal(events[1].Payload, &rem); err != nil {
		t.Fatalf("decode reminder: %v", err)
	}
	if rem.AppointmentID != appt.ID || rem.RemindAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected reminder %+v", rem)
	}
	if got := testutil.ToFloat64(metrics.bookings.WithLabelValues("booked")); got != 1 {
		t.Fatalf("expected one booked metric, got %v", got)
	}
}

func TestBookExplicitReminderTime(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newTestService(t, store)

	at := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	req := checkup("10:00")
	req.ReminderTime = &at
	req.PatientPhone = ""
	if _, err := svc.Book(context.Background(), req); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	events := store.Pending()
	if len(events) != 2 || events[1].EventType != EventReminderRequested {
		t.Fatalf("expected booked + one email reminder, got %d events", len(events))
	}
}

func TestBookSequentialConflict(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, metrics := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Book(ctx, checkup("10:00"))
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	second := checkup("10:15")
	second.PatientID = "patient-2"
	_, err = svc.Book(ctx, second)
	if !errors.Is(err, availability.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	var ce *availability.ConflictError
	if !errors.As(err, &ce) || ce.With.ID != first.Appointment.ID || ce.With.PatientID != "patient-1" {
		t.Fatalf("expected conflict with first appointment, got %+v", ce)
	}
	if got := testutil.ToFloat64(metrics.conflicts.WithLabelValues("validate")); got != 1 {
		t.Fatalf("expected validate-stage conflict, got %v", got)
	}

	// Back to back is fine.
	if _, err := svc.Book(ctx, checkup("10:30")); err != nil {
		t.Fatalf("back-to-back booking failed: %v", err)
	}
}

func TestBookAfterConflictingAppointmentRemoved(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Book(ctx, checkup("11:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if err := svc.Delete(ctx, first.Appointment.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Book(ctx, checkup("11:00")); err != nil {
		t.Fatalf("expected slot to be free after delete, got %v", err)
	}
}

func TestCancelFreesSlotAndBlocksFurtherTransitions(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.Book(ctx, checkup("14:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, res.Appointment.ID, "patient called")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelReason != "patient called" {
		t.Fatalf("unexpected cancelled appointment %+v", cancelled)
	}
	if _, err := svc.Complete(ctx, res.Appointment.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	view, err := svc.DaySlots(ctx, monday, "checkup", "")
	if err != nil {
		t.Fatalf("DaySlots failed: %v", err)
	}
	for _, s := range view.Slots {
		if s.Start.Format("15:04") == "14:00" && s.Status != availability.StatusAvailable {
			t.Fatalf("expected cancelled slot to be available, got %s", s.Status)
		}
	}
	if _, err := svc.Book(ctx, checkup("14:00")); err != nil {
		t.Fatalf("rebooking cancelled slot failed: %v", err)
	}
}

func TestCompleteShowsAsCompletedSlot(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.Book(ctx, checkup("09:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := svc.Complete(ctx, res.Appointment.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	view, err := svc.DaySlots(ctx, monday, "checkup", "09:30")
	if err != nil {
		t.Fatalf("DaySlots failed: %v", err)
	}
	if view.Slots[0].Status != availability.StatusCompleted {
		t.Fatalf("expected 09:00 completed, got %s", view.Slots[0].Status)
	}
	if view.Slots[2].Status != availability.StatusSelected {
		t.Fatalf("expected 09:30 selected, got %s", view.Slots[2].Status)
	}
	if _, err := svc.Cancel(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDaySlotsClosedAndNoType(t *testing.T) {
	svc, _ := newTestService(t, storage.NewMemoryStore())
	ctx := context.Background()

	view, err := svc.DaySlots(ctx, "2026-03-07", "checkup", "")
	if err != nil {
		t.Fatalf("closed day must not fail: %v", err)
	}
	if view.Open || len(view.Slots) != 0 || view.Reason != availability.ErrClinicClosed.Error() {
		t.Fatalf("unexpected closed view %+v", view)
	}

	if _, err := svc.DaySlots(ctx, monday, "", ""); !errors.Is(err, availability.ErrNoTypeSelected) {
		t.Fatalf("expected ErrNoTypeSelected, got %v", err)
	}
	req := checkup("10:00")
	req.TypeID = ""
	if _, err := svc.Book(ctx, req); !errors.Is(err, availability.ErrNoTypeSelected) {
		t.Fatalf("expected ErrNoTypeSelected on book, got %v", err)
	}

	view, err = svc.DaySlots(ctx, monday, "root-canal", "")
	if err != nil {
		t.Fatalf("DaySlots failed: %v", err)
	}
	// 09:00..15:30 for a 90 minute slot in a 09:00-17:00 day.
	if len(view.Slots) != 27 {
		t.Fatalf("expected 27 slots, got %d", len(view.Slots))
	}
}

func TestBookRejectsClosedOutsideAndPast(t *testing.T) {
	svc, _ := newTestService(t, storage.NewMemoryStore())
	ctx := context.Background()

	req := checkup("10:00")
	req.Date = "2026-03-08"
	if _, err := svc.Book(ctx, req); !errors.Is(err, availability.ErrClinicClosed) {
		t.Fatalf("expected ErrClinicClosed, got %v", err)
	}
	if _, err := svc.Book(ctx, checkup("16:45")); !errors.Is(err, availability.ErrOutsideHours) {
		t.Fatalf("expected ErrOutsideHours, got %v", err)
	}
	req = checkup("10:00")
	req.Date = "2026-02-23"
	if _, err := svc.Book(ctx, req); !errors.Is(err, ErrSlotInPast) {
		t.Fatalf("expected ErrSlotInPast, got %v", err)
	}
	req = checkup("10:00")
	req.Date = "02/03/2026"
	if _, err := svc.Book(ctx, req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestBookIdempotencyReplay(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	req := checkup("12:00")
	req.IdempotencyKey = "key-1"
	first, err := svc.Book(ctx, req)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	second, err := svc.Book(ctx, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed || second.Appointment.ID != first.Appointment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, second)
	}
}

// staleStore hides existing appointments from the first listing, simulating a concurrent
// booking that lands between validation and insert.
type staleStore struct {
	*storage.MemoryStore
	stale bool
}

func (s *staleStore) ListForDate(ctx context.Context, date string) ([]model.Appointment, error) {
	if s.stale {
		s.stale = false
		return nil, nil
	}
	return s.MemoryStore.ListForDate(ctx, date)
}

func TestBookRaceCaughtByStore(t *testing.T) {
	store := &staleStore{MemoryStore: storage.NewMemoryStore()}
	svc, metrics := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Book(ctx, checkup("15:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	store.stale = true
	_, err = svc.Book(ctx, checkup("15:00"))
	var ce *availability.ConflictError
	if !errors.As(err, &ce) || ce.With.ID != first.Appointment.ID {
		t.Fatalf("expected store conflict with %s, got %v", first.Appointment.ID, err)
	}
	if got := testutil.ToFloat64(metrics.conflicts.WithLabelValues("store")); got != 1 {
		t.Fatalf("expected store-stage conflict, got %v", got)
	}
}

type failingStore struct {
	*storage.MemoryStore
}

var errBackend = errors.New("connection refused")

func (failingStore) ListForDate(context.Context, string) ([]model.Appointment, error) {
	return nil, errBackend
}

func (failingStore) Create(context.Context, model.Appointment, string, []outbox.Event) error {
	return errBackend
}

func TestStoreFailureWrapped(t *testing.T) {
	svc, _ := newTestService(t, failingStore{storage.NewMemoryStore()})
	_, err := svc.Book(context.Background(), checkup("10:00"))
	if !errors.Is(err, ErrStoreFailure) || !errors.Is(err, errBackend) {
		t.Fatalf("expected wrapped store failure, got %v", err)
	}
}
