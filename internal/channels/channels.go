// Package channels defines the outbound delivery channel contracts and the
// provider adapters behind them. The automation engine depends only on the
// interfaces; concrete providers are wired at process startup.
package channels

import (
	"context"
	"errors"
)

// SMSMessage is an outbound text message.
type SMSMessage struct {
	To      string
	From    string
	Message string
}

// EmailMessage is an outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// SendResult is the provider's acknowledgement of an accepted message.
type SendResult struct {
	ID     string
	Status string
}

// ErrProviderUnavailable marks a provider timeout, 5xx, or open circuit.
var ErrProviderUnavailable = errors.New("channel provider unavailable")

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) (SendResult, error)
}

// EmailSender delivers emails.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) (SendResult, error)
}
