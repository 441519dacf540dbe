package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/metrics"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/booking"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/payments"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/scheduling"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/storage"
)

const monday = "2026-03-02"

type stubIntents struct{}

func (stubIntents) CreateDepositIntent(_ context.Context, appointmentID string, amount int64, currency string) (payments.Intent, error) {
	return payments.Intent{ID: "pi_" + appointmentID, ClientSecret: "cs_test", AmountCents: amount, Currency: currency}, nil
}

func newTestHandler(t *testing.T, intents payments.IntentCreator) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	provider := scheduling.NewStaticProvider(availability.DefaultWeeklySchedule(), scheduling.DefaultAppointmentTypes())
	svc := booking.NewService(store, provider, logger, nil, booking.Config{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC) },
	})
	paySvc := payments.NewService(intents, store, svc, logger, payments.Config{DepositCents: 2500})
	return New(svc, paySvc, logger, time.UTC)
}

func do(t *testing.T, h http.HandlerFunc, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func bookBody(start string) string {
	return `{"patient_id":"p-1","type_id":"checkup","date":"` + monday + `","start_time":"` + start + `","patient_name":"Ada","patient_email":"ada@example.com"}`
}

func TestSlotsOpenDay(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := do(t, h.Slots, http.MethodGet, "/api/v1/slots?date="+monday+"&type_id=checkup&selected=09:30", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	day := decode[dayResponse](t, rec)
	if !day.Open || day.DurationMinutes != 30 {
		t.Fatalf("unexpected day %+v", day)
	}
	// 09:00 through 16:30 every 15 minutes.
	if len(day.Slots) != 31 {
		t.Fatalf("expected 31 slots, got %d", len(day.Slots))
	}
	if day.Slots[0].StartTime != "09:00" || day.Slots[0].EndTime != "09:30" || day.Slots[0].Status != "available" {
		t.Fatalf("unexpected first slot %+v", day.Slots[0])
	}
	if day.Slots[2].StartTime != "09:30" || day.Slots[2].Status != "selected" {
		t.Fatalf("expected 09:30 selected, got %+v", day.Slots[2])
	}
}

func TestSlotsClosedDayAndMissingType(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := do(t, h.Slots, http.MethodGet, "/api/v1/slots?date=2026-03-01&type_id=checkup", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for closed day, got %d", rec.Code)
	}
	day := decode[dayResponse](t, rec)
	if day.Open || day.Reason == "" || len(day.Slots) != 0 {
		t.Fatalf("expected closed day with reason, got %+v", day)
	}

	rec = do(t, h.Slots, http.MethodGet, "/api/v1/slots?date="+monday, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without type, got %d", rec.Code)
	}

	rec = do(t, h.Slots, http.MethodGet, "/api/v1/slots?date=03/02/2026&type_id=checkup", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}

	rec = do(t, h.Slots, http.MethodPost, "/api/v1/slots", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCreateConflictAndReplay(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := do(t, h.Appointments, http.MethodPost, "/api/v1/appointments", bookBody("10:00"), "Idempotency-Key", "k-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[appointmentResponse](t, rec)
	if created.Status != "scheduled" || created.StartTime != "10:00" || created.EndTime != "10:30" {
		t.Fatalf("unexpected appointment %+v", created)
	}

	rec = do(t, h.Appointments, http.MethodPost, "/api/v1/appointments", bookBody("10:00"), "Idempotency-Key", "k-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	if replay := decode[appointmentResponse](t, rec); replay.AppointmentID != created.AppointmentID {
		t.Fatalf("replay returned %s, expected %s", replay.AppointmentID, created.AppointmentID)
	}

	rec = do(t, h.Appointments, http.MethodPost, "/api/v1/appointments", bookBody("10:15"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	conflict := decode[conflictResponse](t, rec)
	if conflict.Conflict == nil || conflict.Conflict.AppointmentID != created.AppointmentID || conflict.Conflict.StartTime != "10:00" {
		t.Fatalf("expected conflict with %s, got %+v", created.AppointmentID, conflict)
	}

	rec = do(t, h.Slots, http.MethodGet, "/api/v1/slots?date="+monday+"&type_id=checkup", "")
	day := decode[dayResponse](t, rec)
	for _, s := range day.Slots {
		if s.StartTime == "10:00" && s.Status != "booked" {
			t.Fatalf("expected 10:00 booked, got %s", s.Status)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	h := newTestHandler(t, nil)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"patient_id":`, http.StatusBadRequest},
		{"unknown field", `{"patient_id":"p","date":"` + monday + `","start_time":"10:00","extra":1}`, http.StatusBadRequest},
		{"bad time", `{"patient_id":"p","type_id":"checkup","date":"` + monday + `","start_time":"10am"}`, http.StatusBadRequest},
		{"bad email", `{"patient_id":"p","type_id":"checkup","date":"` + monday + `","start_time":"10:00","patient_email":"nope"}`, http.StatusBadRequest},
		{"no type", `{"patient_id":"p","date":"` + monday + `","start_time":"10:00"}`, http.StatusUnprocessableEntity},
		{"closed", `{"patient_id":"p","type_id":"checkup","date":"2026-03-01","start_time":"10:00"}`, http.StatusUnprocessableEntity},
		{"after hours", `{"patient_id":"p","type_id":"checkup","date":"` + monday + `","start_time":"16:45"}`, http.StatusUnprocessableEntity},
		{"past", `{"patient_id":"p","type_id":"checkup","date":"2026-02-02","start_time":"10:00"}`, http.StatusUnprocessableEntity},
		{"unknown type", `{"patient_id":"p","type_id":"whitening","date":"` + monday + `","start_time":"10:00"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h.Appointments, http.MethodPost, "/api/v1/appointments", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	h := newTestHandler(t, stubIntents{})

	rec := do(t, h.Appointments, http.MethodPost, "/api/v1/appointments", bookBody("11:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d", rec.Code)
	}
	id := decode[appointmentResponse](t, rec).AppointmentID
	action := `{"appointment_id":"` + id + `"}`

	rec = do(t, h.Deposit, http.MethodPost, "/api/v1/appointments/deposit", action)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if dep := decode[depositResponse](t, rec); dep.ClientSecret != "cs_test" || dep.AmountCents != 2500 {
		t.Fatalf("unexpected deposit %+v", dep)
	}

	rec = do(t, h.Complete, http.MethodPost, "/api/v1/appointments/complete", action)
	if rec.Code != http.StatusOK || decode[appointmentResponse](t, rec).Status != "completed" {
		t.Fatalf("complete: got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h.Cancel, http.MethodPost, "/api/v1/appointments/cancel", `{"appointment_id":"`+id+`","reason":"late"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel after complete: expected 409, got %d", rec.Code)
	}

	rec = do(t, h.Appointments, http.MethodGet, "/api/v1/appointments?patient_id=p-1", "")
	list := decode[struct {
		Items []appointmentResponse `json:"items"`
	}](t, rec)
	if len(list.Items) != 1 || list.Items[0].AppointmentID != id {
		t.Fatalf("unexpected patient list %+v", list.Items)
	}

	rec = do(t, h.Delete, http.MethodPost, "/api/v1/appointments/delete", action)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = do(t, h.Delete, http.MethodPost, "/api/v1/appointments/delete", action)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}

	rec = do(t, h.Appointments, http.MethodGet, "/api/v1/appointments", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("list without filter: expected 400, got %d", rec.Code)
	}
}

func TestActionsRejectMalformedAppointmentID(t *testing.T) {
	h := newTestHandler(t, stubIntents{})
	actions := map[string]http.HandlerFunc{
		"complete": h.Complete,
		"cancel":   h.Cancel,
		"delete":   h.Delete,
		"deposit":  h.Deposit,
	}
	for name, fn := range actions {
		rec := do(t, fn, http.MethodPost, "/api/v1/appointments/"+name, `{"appointment_id":"abc"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 for a non-uuid id, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}

	unknown := `{"appointment_id":"1b4e28ba-2fa1-41d2-883f-0016d3cca427"}`
	if rec := do(t, h.Complete, http.MethodPost, "/api/v1/appointments/complete", unknown); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rec.Code)
	}
}

func TestDepositDisabled(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := do(t, h.Appointments, http.MethodPost, "/api/v1/appointments", bookBody("09:00"))
	id := decode[appointmentResponse](t, rec).AppointmentID

	rec = do(t, h.Deposit, http.MethodPost, "/api/v1/appointments/deposit", `{"appointment_id":"`+id+`"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with deposits disabled, got %d", rec.Code)
	}
}

func TestRegisterProtectsAPIRoutes(t *testing.T) {
	h := newTestHandler(t, nil)
	mux := http.NewServeMux()
	deny := httpx.Middleware(func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token")
		})
	})
	webhookHit := false
	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhookHit = true
		w.WriteHeader(http.StatusOK)
	})
	h.Register(mux, deny, metrics.NewHTTP(prometheus.NewRegistry(), "booking"), webhook)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointment-types", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/stripe", strings.NewReader("{}")))
	if rec.Code != http.StatusOK || !webhookHit {
		t.Fatalf("expected webhook to bypass auth, got %d", rec.Code)
	}
}

func TestAppointmentTypes(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := do(t, h.AppointmentTypes, http.MethodGet, "/api/v1/appointment-types", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode[struct {
		Items []appointmentTypeResponse `json:"items"`
	}](t, rec)
	if len(out.Items) != len(scheduling.DefaultAppointmentTypes()) {
		t.Fatalf("expected %d types, got %d", len(scheduling.DefaultAppointmentTypes()), len(out.Items))
	}
}
