package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/booking"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/payments"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/storage"
)

type Handler struct {
	svc      *booking.Service
	payments *payments.Service
	logger   *slog.Logger
	loc      *time.Location
}

func New(svc *booking.Service, paymentsSvc *payments.Service, logger *slog.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, payments: paymentsSvc, logger: logger, loc: loc}
}

// Slots serves GET /api/v1/slots?date=YYYY-MM-DD&type_id=&selected=HH:MM.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	view, err := h.svc.DaySlots(r.Context(), strings.TrimSpace(q.Get("date")), strings.TrimSpace(q.Get("type_id")), strings.TrimSpace(q.Get("selected")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDayResponse(view, h.loc))
}

func (h *Handler) AppointmentTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	types, err := h.svc.AppointmentTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]appointmentTypeResponse, 0, len(types))
	for _, t := range types {
		out = append(out, toTypeResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// Appointments serves GET (list by date or patient) and POST (book).
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookReq := booking.BookRequest{
		PatientID:      req.PatientID,
		TypeID:         req.TypeID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		Notes:          strings.TrimSpace(req.Notes),
		PatientName:    req.PatientName,
		PatientEmail:   req.PatientEmail,
		PatientPhone:   req.PatientPhone,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if req.ReminderTime != "" {
		t, err := time.Parse(time.RFC3339, req.ReminderTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid reminder_time")
			return
		}
		bookReq.ReminderTime = &t
	}

	res, err := h.svc.Book(r.Context(), bookReq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, toAppointmentResponse(res.Appointment, h.loc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	patientID := strings.TrimSpace(q.Get("patient_id"))

	var (
		appts []model.Appointment
		err   error
	)
	switch {
	case date != "":
		appts, err = h.svc.ListForDate(r.Context(), date)
	case patientID != "":
		appts, err = h.svc.ListForPatient(r.Context(), patientID)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "date or patient_id required")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a, h.loc))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req appointmentActionRequest) (model.Appointment, error) {
		return h.svc.Complete(r.Context(), req.AppointmentID)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req appointmentActionRequest) (model.Appointment, error) {
		return h.svc.Cancel(r.Context(), req.AppointmentID, strings.TrimSpace(req.Reason))
	})
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, do func(appointmentActionRequest) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := do(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt, h.loc))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Delete(r.Context(), req.AppointmentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	intent, err := h.payments.RequestDeposit(r.Context(), req.AppointmentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, depositResponse{
		AppointmentID:   req.AppointmentID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *availability.ConflictError
	switch {
	case errors.As(err, &conflict):
		httpx.WriteJSON(w, http.StatusConflict, toConflictResponse(conflict, h.loc))
	case errors.Is(err, booking.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, booking.ErrNotFound.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, payments.ErrNotPayable):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, availability.ErrNoTypeSelected),
		errors.Is(err, availability.ErrClinicClosed),
		errors.Is(err, availability.ErrOutsideHours),
		errors.Is(err, booking.ErrSlotInPast):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrScheduleUnavailable), errors.Is(err, payments.ErrDepositsDisabled):
		h.logger.Warn("dependency unavailable", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		h.logger.Error("request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
