package notifications

import (
	"context"
	"time"
)

type SendRegistrationConfirmationInput struct {
	Email          string
	Name           string
	EventID        string
	EventTitle     string
	EventDate      string
	RegistrationID string
	TicketCode     string
	FeeTotal       float64
	IsLastMinute   bool
}

type SendCancellationNoticeInput struct {
	Email          string
	Name           string
	EventID        string
	EventTitle     string
	RegistrationID string
	TicketCode     string
	CancelledAt    time.Time
}

// Notifier delivers registrant-facing messages. Implementations must honor
// ctx cancellation.
type Notifier interface {
	SendRegistrationConfirmation(ctx context.Context, input SendRegistrationConfirmationInput) error
	SendCancellationNotice(ctx context.Context, input SendCancellationNoticeInput) error
}
