package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

type From struct {
	Address string
	Name    string
}

// SMTPSender delivers email through an SMTP relay such as Mailpit or a hosted provider.
type SMTPSender struct {
	from From
	send func(...*gomail.Message) error
}

// NewSMTPSender returns a sender for host:port. Empty credentials send unauthenticated.
func NewSMTPSender(host string, port int, username, password string, from From) *SMTPSender {
	d := gomail.NewDialer(strings.TrimSpace(host), port, username, password)
	return &SMTPSender{from: from, send: d.DialAndSend}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, toName, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return errNoRecipient
	}
	return s.send(buildMessage(s.from, to, toName, subject, body))
}

func buildMessage(from From, to, toName, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	m.SetAddressHeader("To", to, toName)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	m.AddAlternative("text/html", htmlBody(body))
	return m
}

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	client mailClient
	from   From
}

func NewSendGridSender(apiKey string, from From) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), from: from}
}

func (s *SendGridSender) ProviderID() string {
	return "sendgrid"
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, toName, subject, body string) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Address),
		subject,
		mail.NewEmail(toName, to),
		body,
		htmlBody(body),
	)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// NoopEmailSender accepts every message without sending it.
type NoopEmailSender struct{}

func (NoopEmailSender) ProviderID() string {
	return "email-noop"
}

func (NoopEmailSender) SendEmail(context.Context, string, string, string, string) error {
	return nil
}

var errNoRecipient = errors.New("recipient is empty")

func htmlBody(body string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(body), "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
