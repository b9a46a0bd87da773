package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to the log instead of sending them. It is
// the default for local runs.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendRegistrationConfirmation(ctx context.Context, in SendRegistrationConfirmationInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := ConfirmationMessage(in)
	n.log.InfoContext(ctx, "notification.registration_confirmation",
		"to", msg.To,
		"subject", msg.Subject,
		"event_id", in.EventID,
		"registration_id", in.RegistrationID,
		"ticket_code", in.TicketCode,
	)
	return nil
}

func (n *LogNotifier) SendCancellationNotice(ctx context.Context, in SendCancellationNoticeInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := CancellationMessage(in)
	n.log.InfoContext(ctx, "notification.cancellation_notice",
		"to", msg.To,
		"subject", msg.Subject,
		"event_id", in.EventID,
		"registration_id", in.RegistrationID,
	)
	return nil
}
