// Package notify delivers account emails: verification links, reset links
// and password-changed notices.
package notify

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidMessage is returned for messages that cannot be sent safely.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends one message. Implementations must honor ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Validate rejects empty recipients and header injection.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return ErrInvalidMessage
	}
	return nil
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
