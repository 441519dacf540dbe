package main

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func TestBuildEventVerifiesWithStripeSignature(t *testing.T) {
	now := time.Now().UTC()
	payload, err := buildEventJSON("evt_1", "payment_intent.succeeded", now, "appt-1", 2500, "USD")
	if err != nil {
		t.Fatalf("buildEventJSON: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: now,
		Scheme:    "v1",
	})
	evt, err := webhook.ConstructEventWithTolerance(payload, signed.Header, "whsec_test", webhook.DefaultTolerance)
	if err != nil {
		t.Fatalf("construct event: %v", err)
	}
	if evt.ID != "evt_1" || evt.Type != "payment_intent.succeeded" {
		t.Fatalf("unexpected event %s %s", evt.ID, evt.Type)
	}
	if got := evt.Data.Object["metadata"].(map[string]any)["appointment_id"]; got != "appt-1" {
		t.Fatalf("appointment_id metadata = %v", got)
	}
	if got := evt.Data.Object["currency"]; got != "usd" {
		t.Fatalf("currency = %v", got)
	}
}

func TestBuildEventRejectsUnknownType(t *testing.T) {
	if _, err := buildEventJSON("evt_1", "checkout.session.completed", time.Now(), "appt-1", 100, "usd"); err == nil {
		t.Fatalf("expected error")
	}
}
