// Package notify delivers lifecycle events to users over email and the
// in-app portal, honoring per-user notification preferences.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends one email. Send errors propagate to the caller: a failed
// delivery fails the request that triggered it.
type Mailer interface {
	Send(ctx context.Context, to, toName, subject, body string) error
}

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewSendGridMailer creates a SendGridMailer.
func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{apiKey: apiKey, fromEmail: fromEmail, fromName: fromName}
}

// Send delivers a plain-text email via SendGrid.
func (s *SendGridMailer) Send(ctx context.Context, to, toName, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, to)
	message := mail.NewSingleEmailPlainText(from, subject, recipient, body)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them. Used in
// development when no SendGrid key is configured.
type LogMailer struct {
	log *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// Send logs the email instead of delivering it.
func (l *LogMailer) Send(ctx context.Context, to, _, subject, body string) error {
	l.log.InfoContext(ctx, "email (not sent: no mail provider configured)",
		"to", to, "subject", subject, "body_length", len(body))
	return nil
}
