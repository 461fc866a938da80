package mailer

import (
	"context"
	"errors"
	"time"
)

// FailedMessageID is the provider message id reported when a send fails.
// Transport errors never propagate past the Adapter; callers compare
// against this value instead.
const FailedMessageID = "-1"

// ErrTransportUnavailable is returned by HealthCheck when a transport
// cannot currently accept mail.
var ErrTransportUnavailable = errors.New("mailer: transport unavailable")

// Transport delivers a single rendered email.
type Transport interface {
	// Send delivers the email and returns the provider's message id.
	Send(ctx context.Context, email *Email) (string, error)
	// Name returns the transport identifier (e.g., "smtp", "stdout").
	Name() string
	// HealthCheck verifies the transport is reachable.
	HealthCheck(ctx context.Context) error
}

// Email is one outbound message addressed to one subscriber.
type Email struct {
	// MessageID is the messages.id row the email was built from.
	MessageID int64
	FromName  string
	FromEmail string
	To        string
	Subject   string
	Headers   map[string]string
	Body      []byte
	// Date defaults to time.Now when zero.
	Date time.Time
}

// Validate checks the fields every transport depends on.
func (e *Email) Validate() error {
	if e.FromEmail == "" {
		return errors.New("mailer: from address is required")
	}
	if e.To == "" {
		return errors.New("mailer: recipient is required")
	}
	return nil
}
