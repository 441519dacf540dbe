package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/services/reminder-service/internal/jobs"
)

type Lister interface {
	ListForAppointment(ctx context.Context, appointmentID string) ([]jobs.Job, error)
}

type Handler struct {
	store  Lister
	logger *slog.Logger
}

func New(store Lister, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type reminderResponse struct {
	ID            int64   `json:"id"`
	AppointmentID string  `json:"appointment_id"`
	Channel       string  `json:"channel"`
	Recipient     string  `json:"recipient"`
	RemindAt      string  `json:"remind_at"`
	Status        string  `json:"status"`
	Attempts      int     `json:"attempts"`
	NextRunAt     *string `json:"next_run_at,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
	ProviderID    string  `json:"provider_id,omitempty"`
}

func toResponse(j jobs.Job) reminderResponse {
	out := reminderResponse{
		ID:            j.ID,
		AppointmentID: j.AppointmentID,
		Channel:       j.Channel,
		Recipient:     j.Recipient,
		RemindAt:      j.RemindAt.UTC().Format(time.RFC3339),
		Status:        string(j.Status),
		Attempts:      j.Attempts,
		LastError:     j.LastError,
		ProviderID:    j.ProviderID,
	}
	if j.Status == jobs.StatusPending {
		next := j.NextRunAt.UTC().Format(time.RFC3339)
		out.NextRunAt = &next
	}
	return out
}

// ListReminders serves GET /api/v1/reminders?appointment_id=...
func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	list, err := h.store.ListForAppointment(r.Context(), id)
	if err != nil {
		h.logger.Error("list reminders failed", "err", err, "appointment_id", id, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]reminderResponse, 0, len(list))
	for _, j := range list {
		items = append(items, toResponse(j))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
