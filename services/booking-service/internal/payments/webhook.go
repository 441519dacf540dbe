package payments

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/smiledesk/smiledesk/libs/httpx"
)

// WebhookHandler receives Stripe events. The signature is the authentication, so the route must
// not sit behind bearer auth.
type WebhookHandler struct {
	svc       *Service
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewWebhookHandler(svc *Service, secret string, tolerance time.Duration, logger *slog.Logger) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{svc: svc, secret: secret, tolerance: tolerance, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", string(evt.Type),
	)

	switch evt.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		appointmentID := strings.TrimSpace(pi.Metadata["appointment_id"])
		recorded, err := h.svc.RecordPayment(r.Context(), evt.ID, Intent{
			ID:          pi.ID,
			AmountCents: pi.AmountReceived,
			Currency:    string(pi.Currency),
			Status:      string(pi.Status),
		}, appointmentID)
		if errors.Is(err, ErrMissingAppointment) {
			h.logger.Warn("stripe: payment intent without appointment_id metadata", "payment_intent_id", pi.ID)
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		if err != nil {
			h.logger.Error("stripe: record payment failed", "err", err)
			http.Error(w, "failed to record payment", http.StatusInternalServerError)
			return
		}
		if !recorded {
			h.logger.Info("payment provider event duplicate ignored", "provider_event_id", evt.ID)
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}
