package handlers

import (
	"net/http"

	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/metrics"
)

// Register mounts the API on mux. Every route except the Stripe webhook runs behind protect.
func (h *Handler) Register(mux *http.ServeMux, protect httpx.Middleware, m *metrics.HTTP, webhook http.Handler) {
	routes := []struct {
		path    string
		name    string
		handler http.HandlerFunc
	}{
		{"/api/v1/slots", "slots", h.Slots},
		{"/api/v1/appointment-types", "appointment_types", h.AppointmentTypes},
		{"/api/v1/appointments", "appointments", h.Appointments},
		{"/api/v1/appointments/complete", "appointments_complete", h.Complete},
		{"/api/v1/appointments/cancel", "appointments_cancel", h.Cancel},
		{"/api/v1/appointments/delete", "appointments_delete", h.Delete},
		{"/api/v1/appointments/deposit", "appointments_deposit", h.Deposit},
	}
	for _, rt := range routes {
		mux.Handle(rt.path, m.Wrap(rt.name, httpx.Chain(rt.handler, protect)))
	}
	if webhook != nil {
		mux.Handle("/api/v1/payments/webhooks/stripe", m.Wrap("stripe_webhook", webhook))
	}
}
