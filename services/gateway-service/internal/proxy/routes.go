package proxy

import (
	"net/url"

	"github.com/smiledesk/smiledesk/libs/httpx"
)

// Upstreams are the base URLs of the services behind the gateway.
type Upstreams struct {
	Auth     *url.URL
	Booking  *url.URL
	Clinic   *url.URL
	Reminder *url.URL
}

// Routes is the public API surface. staff guards clinic staff endpoints; it may be nil when
// authentication is disabled.
func Routes(up Upstreams, staff httpx.Middleware) []Route {
	return []Route{
		// Login, refresh and the signing keys are reachable without a token; auth-service guards
		// its own staff endpoints.
		{Name: "auth", Prefix: "/api/v1/auth", Upstream: up.Auth},
		{Name: "jwks", Prefix: "/.well-known/jwks.json", Upstream: up.Auth},
		// Stripe authenticates with the webhook signature.
		{Name: "stripe_webhook", Prefix: "/api/v1/payments/webhooks/stripe", Upstream: up.Booking},
		{Name: "slots", Prefix: "/api/v1/slots", Upstream: up.Booking, Protect: staff},
		{Name: "appointment_types", Prefix: "/api/v1/appointment-types", Upstream: up.Booking, Protect: staff},
		{Name: "appointments", Prefix: "/api/v1/appointments", Upstream: up.Booking, Protect: staff},
		{Name: "clinic", Prefix: "/api/v1/clinic", Upstream: up.Clinic, Protect: staff},
		{Name: "reminders", Prefix: "/api/v1/reminders", Upstream: up.Reminder, Protect: staff},
	}
}
