// Package notify delivers outbound e-mail notices. Transports are
// best-effort: callers log failures and never roll back on them.
package notify

import (
	"context"
	"errors"
	"net/mail"
)

// ErrNoRecipient is returned when a message has no usable address.
var ErrNoRecipient = errors.New("notify: message has no recipient")

// Message is a rendered notice ready for delivery.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers a single message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

func validate(msg Message) error {
	if msg.To.Address == "" {
		return ErrNoRecipient
	}
	if _, err := mail.ParseAddress(msg.To.Address); err != nil {
		return err
	}
	return nil
}
