// Command stripe-webhook-sim posts a signed Stripe event to the booking deposit webhook so
// deposits can be exercised locally without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/payments/webhooks/stripe"

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "gateway or booking-service base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		appointment = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment_id metadata")
		amount      = flag.Int64("amount", 2500, "amount in cents")
		currency    = flag.String("currency", getenv("DEPOSIT_CURRENCY", "usd"), "currency")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())

	payload, err := buildEventJSON(eventID, *evtType, now, *appointment, *amount, *currency)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+webhookPath, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("event=%s status=%d body=%s\n", eventID, resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, appointmentID string, amount int64, currency string) ([]byte, error) {
	intentStatus := ""
	switch eventType {
	case "payment_intent.succeeded":
		intentStatus = "succeeded"
	case "payment_intent.payment_failed":
		intentStatus = "requires_payment_method"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	received := amount
	if intentStatus != "succeeded" {
		received = 0
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":              fmt.Sprintf("pi_test_%d", t.UnixNano()),
				"object":          "payment_intent",
				"amount":          amount,
				"amount_received": received,
				"currency":        strings.ToLower(currency),
				"status":          intentStatus,
				"metadata": map[string]any{
					"appointment_id": appointmentID,
				},
			},
		},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
