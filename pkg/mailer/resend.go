package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ErrNoRecipients is returned when a message has nobody to deliver to.
var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Message is an outgoing HTML e-mail.
type Message struct {
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

// Sender delivers e-mail messages and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender sends e-mail through the Resend API.
type ResendSender struct {
	emails resendEmails
	from   string
	logger *zap.Logger
}

// NewResendSender creates a sender using apiKey and a default from address.
func NewResendSender(apiKey, from string, logger *zap.Logger) *ResendSender {
	return newResendSender(resend.NewClient(apiKey).Emails, from, logger)
}

func newResendSender(emails resendEmails, from string, logger *zap.Logger) *ResendSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResendSender{emails: emails, from: from, logger: logger}
}

// Send delivers msg and returns the Resend message id.
func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.ReplyTo != "" {
		params.ReplyTo = msg.ReplyTo
	}

	sent, err := s.emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Warn("resend send failed", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		return "", fmt.Errorf("resend send: %w", err)
	}

	s.logger.Debug("resend sent", zap.String("message_id", sent.Id), zap.Int("recipients", len(msg.To)))
	return sent.Id, nil
}

// Noop discards messages. Used when e-mail delivery is disabled.
type Noop struct{}

// Send implements Sender.
func (Noop) Send(context.Context, Message) (string, error) { return "", nil }
