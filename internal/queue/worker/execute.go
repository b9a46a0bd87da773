package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/eventpass/internal/jobs"
	"github.com/geocoder89/eventpass/internal/notifications"
)

func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case jobs.RegistrationConfirmationPayload:
		return w.notifier.SendRegistrationConfirmation(ctx, notifications.SendRegistrationConfirmationInput{
			Email:          p.Email,
			Name:           p.Name,
			EventID:        p.EventID,
			EventTitle:     p.EventTitle,
			EventDate:      formatDate(p.EventDate),
			RegistrationID: p.RegistrationID,
			TicketCode:     p.TicketCode,
			FeeTotal:       p.FeeTotal,
			IsLastMinute:   p.IsLastMinute,
		})

	case jobs.CancellationNoticePayload:
		return w.notifier.SendCancellationNotice(ctx, notifications.SendCancellationNoticeInput{
			Email:          p.Email,
			Name:           p.Name,
			EventID:        p.EventID,
			EventTitle:     p.EventTitle,
			RegistrationID: p.RegistrationID,
			TicketCode:     p.TicketCode,
			CancelledAt:    p.RequestedAt,
		})

	default:
		return fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Mon 2 Jan 2006")
}
