package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

var ErrUnsupportedChannel = errors.New("unsupported channel")

// Message is a rendered reminder ready for a channel.
type Message struct {
	Channel   string
	Recipient string
	Name      string
	Subject   string
	Body      string
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, toName, subject, body string) error
	ProviderID() string
}

type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// Dispatcher routes messages to the sender for their channel.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender
}

// NewDispatcher returns a dispatcher. A nil sender makes its channel fail with
// ErrUnsupportedChannel.
func NewDispatcher(email EmailSender, sms SMSSender) *Dispatcher {
	return &Dispatcher{email: email, sms: sms}
}

// Deliver sends m and returns the id of the provider that accepted it.
func (d *Dispatcher) Deliver(ctx context.Context, m Message) (string, error) {
	switch strings.ToLower(m.Channel) {
	case ChannelEmail:
		if d.email == nil {
			break
		}
		if err := d.email.SendEmail(ctx, m.Recipient, m.Name, m.Subject, m.Body); err != nil {
			return "", fmt.Errorf("%s: %w", d.email.ProviderID(), err)
		}
		return d.email.ProviderID(), nil
	case ChannelSMS:
		if d.sms == nil {
			break
		}
		if err := d.sms.Send(ctx, m.Recipient, m.Body); err != nil {
			return "", fmt.Errorf("%s: %w", d.sms.ProviderID(), err)
		}
		return d.sms.ProviderID(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, m.Channel)
}
