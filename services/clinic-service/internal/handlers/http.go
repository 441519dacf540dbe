package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
)

type Handler struct {
	svc    *clinic.Service
	logger *slog.Logger
}

func New(svc *clinic.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type dayHours struct {
	Weekday int    `json:"weekday" validate:"min=0,max=6"`
	IsOpen  bool   `json:"is_open"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Name    string `json:"name,omitempty"`
}

type updateHoursRequest struct {
	Days []dayHours `json:"days" validate:"required,min=1,max=7,dive"`
}

type appointmentTypeBody struct {
	ID              string `json:"id" validate:"omitempty,max=64,excludesall= /"`
	Name            string `json:"name" validate:"required,max=100"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
	Color           string `json:"color" validate:"omitempty,hexcolor"`
}

func toDayHours(h clinic.WorkingHours) dayHours {
	out := dayHours{Weekday: int(h.Weekday), IsOpen: h.IsOpen, Name: h.Weekday.String()}
	if h.IsOpen {
		out.Start = clinic.FormatMinute(h.StartMinute)
		out.End = clinic.FormatMinute(h.EndMinute)
	}
	return out
}

func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	week, err := h.svc.WeeklyHours(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	days := make([]dayHours, 0, len(week))
	for _, d := range week {
		days = append(days, toDayHours(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *Handler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	var req updateHoursRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	hours := make([]clinic.WorkingHours, 0, len(req.Days))
	for _, d := range req.Days {
		wh := clinic.WorkingHours{Weekday: time.Weekday(d.Weekday), IsOpen: d.IsOpen}
		if d.IsOpen {
			start, err := clinic.ParseMinute(d.Start)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			end, err := clinic.ParseMinute(d.End)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			wh.StartMinute, wh.EndMinute = start, end
		}
		hours = append(hours, wh)
	}
	week, err := h.svc.UpdateHours(r.Context(), hours)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	days := make([]dayHours, 0, len(week))
	for _, d := range week {
		days = append(days, toDayHours(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *Handler) ListAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.AppointmentTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]appointmentTypeBody, 0, len(types))
	for _, t := range types {
		items = append(items, appointmentTypeBody{ID: t.ID, Name: t.Name, DurationMinutes: t.DurationMinutes, Color: t.Color})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) CreateAppointmentType(w http.ResponseWriter, r *http.Request) {
	var req appointmentTypeBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.svc.CreateAppointmentType(r.Context(), clinic.AppointmentType{
		ID:              req.ID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		Color:           req.Color,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appointmentTypeBody{ID: t.ID, Name: t.Name, DurationMinutes: t.DurationMinutes, Color: t.Color})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, clinic.ErrInvalidHours), errors.Is(err, clinic.ErrInvalidType):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, clinic.ErrDuplicateType):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
