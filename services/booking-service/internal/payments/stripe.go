package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Intent is a provider payment intent the front desk hands to the patient's browser.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       string
}

// IntentCreator creates deposit payment intents.
type IntentCreator interface {
	CreateDepositIntent(ctx context.Context, appointmentID string, amountCents int64, currency string) (Intent, error)
}

type StripeIntents struct {
	api *client.API
}

func NewStripeIntents(secretKey string) *StripeIntents {
	return &StripeIntents{api: client.New(secretKey, nil)}
}

// CreateDepositIntent is idempotent per appointment, so retries return the same intent.
func (s *StripeIntents) CreateDepositIntent(ctx context.Context, appointmentID string, amountCents int64, currency string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String("Appointment deposit " + appointmentID),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("deposit-" + appointmentID)
	params.AddMetadata("appointment_id", appointmentID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe payment intent: %w", err)
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}, nil
}
