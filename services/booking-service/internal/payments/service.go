package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/outbox"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/storage"
)

const EventPaymentReceived = "booking.payment.received.v1"

var (
	ErrDepositsDisabled   = errors.New("deposits not configured")
	ErrNotPayable         = errors.New("appointment is not awaiting payment")
	ErrMissingAppointment = errors.New("payment has no valid appointment_id metadata")
)

type Store interface {
	RecordDeposit(ctx context.Context, d storage.Deposit, events []outbox.Event) error
	DepositsForAppointment(ctx context.Context, appointmentID string) ([]storage.Deposit, error)
}

// AppointmentLookup resolves appointments by id.
type AppointmentLookup interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
}

type PaymentReceived struct {
	AppointmentID   string `json:"appointment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	ReceivedAt      string `json:"received_at"`
}

type Config struct {
	DepositCents int64
	Currency     string
}

type Service struct {
	intents IntentCreator
	store   Store
	appts   AppointmentLookup
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// NewService wires deposits. A nil intents disables RequestDeposit.
func NewService(intents IntentCreator, store Store, appts AppointmentLookup, logger *slog.Logger, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Service{
		intents: intents,
		store:   store,
		appts:   appts,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RequestDeposit opens a deposit payment intent for a scheduled appointment.
func (s *Service) RequestDeposit(ctx context.Context, appointmentID string) (Intent, error) {
	if s.intents == nil || s.cfg.DepositCents <= 0 {
		return Intent{}, ErrDepositsDisabled
	}
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return Intent{}, err
	}
	if appt.Status != model.StatusScheduled {
		return Intent{}, ErrNotPayable
	}
	intent, err := s.intents.CreateDepositIntent(ctx, appt.ID, s.cfg.DepositCents, strings.ToLower(s.cfg.Currency))
	if err != nil {
		return Intent{}, err
	}
	s.logger.Info("deposit requested", "appointment_id", appt.ID, "payment_intent_id", intent.ID)
	return intent, nil
}

// RecordPayment stores a succeeded payment once per provider event. It reports false for a
// replayed event.
func (s *Service) RecordPayment(ctx context.Context, providerEventID string, intent Intent, appointmentID string) (bool, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return false, ErrMissingAppointment
	}
	now := s.now().UTC()
	evt, err := outbox.NewEvent(ctx, "appointment", appointmentID, EventPaymentReceived, PaymentReceived{
		AppointmentID:   appointmentID,
		PaymentIntentID: intent.ID,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
		ReceivedAt:      now.Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	err = s.store.RecordDeposit(ctx, storage.Deposit{
		ID:              uuid.NewString(),
		AppointmentID:   appointmentID,
		PaymentIntentID: intent.ID,
		ProviderEventID: providerEventID,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
		CreatedAt:       now,
	}, []outbox.Event{evt})
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record deposit: %w", err)
	}
	return true, nil
}

func (s *Service) Deposits(ctx context.Context, appointmentID string) ([]storage.Deposit, error) {
	return s.store.DepositsForAppointment(ctx, appointmentID)
}
