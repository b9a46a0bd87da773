package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/jobs"
)

// Register admits a party to an event or explains why it cannot.
// Capacity is checked on a best-effort read; uniqueness is enforced by the
// ledger insert.
func (s *RegistrationService) Register(
	ctx context.Context,
	eventID string,
	registrant user.Principal,
	party registration.PartyInfo,
	lastMinute bool,
) (registration.Registration, error) {
	reg, err := s.register(ctx, eventID, registrant, party, lastMinute)
	s.recordAdmission(reg, err)

	if err != nil {
		s.log.DebugContext(ctx, "registration.rejected",
			slog.String("event_id", eventID),
			slog.String("registrant_id", registrant.ID),
			slog.String("reason", err.Error()),
		)
		return registration.Registration{}, err
	}

	s.log.InfoContext(ctx, "registration.admitted",
		slog.String("registration_id", reg.ID),
		slog.String("event_id", reg.EventID),
		slog.String("variant", string(reg.Variant)),
		slog.Int("party_size", reg.PartySize),
		slog.Float64("fee_total", reg.FeeTotal),
		slog.Bool("last_minute", reg.IsLastMinute),
	)
	return reg, nil
}

func (s *RegistrationService) register(
	ctx context.Context,
	eventID string,
	registrant user.Principal,
	party registration.PartyInfo,
	lastMinute bool,
) (registration.Registration, error) {
	if registrant.ID == "" {
		return registration.Registration{}, registration.ErrUnauthorized
	}
	if party == nil {
		return registration.Registration{}, registration.ErrInvalidParty
	}

	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return registration.Registration{}, err
	}

	now := s.now()
	if ev.IsPast(now) {
		return registration.Registration{}, registration.ErrEventClosed
	}

	partyKey, err := party.Key(registrant.ID)
	if err != nil {
		return registration.Registration{}, err
	}

	_, err = s.ledger.FindByPartyKey(ctx, ev.ID, partyKey)
	switch {
	case err == nil:
		return registration.Registration{}, registration.ErrAlreadyRegistered
	case !errors.Is(err, registration.ErrNotFound):
		return registration.Registration{}, fmt.Errorf("find by party key: %w", err)
	}

	if team, ok := party.(registration.Team); ok {
		if err := team.Validate(); err != nil {
			return registration.Registration{}, err
		}
		if s.proofs != nil && !s.proofs.Exists(strings.TrimSpace(team.PaymentProofRef)) {
			return registration.Registration{}, registration.ErrMissingPaymentProof
		}
	}

	active, err := s.ledger.CountActive(ctx, ev.ID)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("count active: %w", err)
	}

	isLastMinute := false
	if active >= ev.Capacity {
		if !lastMinute {
			return registration.Registration{}, registration.ErrEventFull
		}
		isLastMinute = true
	}

	reg := registration.New(registration.Admission{
		EventID: ev.ID,
		Registrant: registration.Registrant{
			ID:         registrant.ID,
			Name:       registrant.Name,
			Email:      registrant.Email,
			Department: registrant.Department,
		},
		Party:        party,
		PartyKey:     partyKey,
		FeeTotal:     registration.ComputeFee(ev.BaseFee, party.Size(), ev.LastMinuteFeeMultiplier, isLastMinute),
		IsLastMinute: isLastMinute,
		At:           now,
	})

	saved, err := s.ledger.Insert(ctx, reg)
	if err != nil {
		if errors.Is(err, registration.ErrConflict) {
			return registration.Registration{}, fmt.Errorf("%w: %w", registration.ErrAlreadyRegistered, err)
		}
		return registration.Registration{}, fmt.Errorf("insert registration: %w", err)
	}

	s.enqueue(ctx, jobs.JobSendRegistrationConfirmation, jobs.RegistrationConfirmationPayload{
		RegistrationID: saved.ID,
		EventID:        ev.ID,
		EventTitle:     ev.Title,
		EventDate:      ev.Date,
		RegistrantID:   saved.RegistrantID,
		Email:          saved.Email,
		Name:           saved.Name,
		TicketCode:     saved.TicketCode,
		FeeTotal:       saved.FeeTotal,
		IsLastMinute:   saved.IsLastMinute,
		RequestedAt:    now.UTC(),
	})

	return saved, nil
}

// Cancel moves a registration to Cancelled. The record is kept.
func (s *RegistrationService) Cancel(ctx context.Context, id string, requester user.Principal) (registration.Registration, error) {
	reg, ev, err := s.loadOwned(ctx, id, requester)
	if err != nil {
		return registration.Registration{}, err
	}

	updated, err := s.transition(ctx, reg, registration.StatusCancelled)
	if err != nil {
		return registration.Registration{}, err
	}

	s.log.InfoContext(ctx, "registration.cancelled",
		slog.String("registration_id", updated.ID),
		slog.String("event_id", updated.EventID),
		slog.String("by", requester.ID),
	)
	s.enqueueCancellation(ctx, ev, updated)

	return updated, nil
}

// Update changes the display fields of an active registration.
func (s *RegistrationService) Update(ctx context.Context, id string, requester user.Principal, patch registration.Patch) (registration.Registration, error) {
	reg, _, err := s.loadOwned(ctx, id, requester)
	if err != nil {
		return registration.Registration{}, err
	}
	if !reg.IsActive() {
		return registration.Registration{}, registration.ErrInactive
	}
	if patch.Empty() {
		return reg, nil
	}

	next, err := patch.Apply(reg)
	if err != nil {
		return registration.Registration{}, err
	}
	next.UpdatedAt = s.now().UTC()

	saved, err := s.ledger.UpdateDetails(ctx, next)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			return registration.Registration{}, err
		}
		return registration.Registration{}, fmt.Errorf("update registration: %w", err)
	}
	return saved, nil
}

// SetPaymentStatus drives the simulated payment lifecycle. Only the event
// organizer or an admin may move a registration.
func (s *RegistrationService) SetPaymentStatus(ctx context.Context, id string, requester user.Principal, to registration.Status) (registration.Registration, error) {
	if requester.ID == "" {
		return registration.Registration{}, registration.ErrUnauthorized
	}
	if !to.IsValid() {
		return registration.Registration{}, registration.ErrInvalidTransition
	}

	reg, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return registration.Registration{}, s.wrapLedgerErr("get registration", err)
	}

	ev, err := s.loadEvent(ctx, reg.EventID)
	if err != nil {
		return registration.Registration{}, err
	}
	if !organizes(ev, requester) {
		return registration.Registration{}, registration.ErrForbidden
	}

	updated, err := s.transition(ctx, reg, to)
	if err != nil {
		return registration.Registration{}, err
	}

	s.log.InfoContext(ctx, "registration.payment_status_changed",
		slog.String("registration_id", updated.ID),
		slog.String("from", string(reg.PaymentStatus)),
		slog.String("to", string(updated.PaymentStatus)),
	)
	if to == registration.StatusCancelled {
		s.enqueueCancellation(ctx, ev, updated)
	}

	return updated, nil
}

func (s *RegistrationService) Get(ctx context.Context, id string, requester user.Principal) (registration.Registration, error) {
	if requester.ID == "" {
		return registration.Registration{}, registration.ErrUnauthorized
	}

	reg, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return registration.Registration{}, s.wrapLedgerErr("get registration", err)
	}
	if reg.RegistrantID == requester.ID || requester.IsAdmin() {
		return reg, nil
	}

	ev, err := s.loadEvent(ctx, reg.EventID)
	if err != nil {
		return registration.Registration{}, err
	}
	if !organizes(ev, requester) {
		return registration.Registration{}, registration.ErrForbidden
	}
	return reg, nil
}

// ListForEvent returns every registration of an event, cancelled included.
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID string, requester user.Principal) ([]registration.Registration, error) {
	if requester.ID == "" {
		return nil, registration.ErrUnauthorized
	}

	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !organizes(ev, requester) {
		return nil, registration.ErrForbidden
	}

	regs, err := s.ledger.ListByEvent(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func (s *RegistrationService) ListMine(ctx context.Context, requester user.Principal) ([]registration.Registration, error) {
	if requester.ID == "" {
		return nil, registration.ErrUnauthorized
	}

	regs, err := s.ledger.ListByRegistrant(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// Delete hard-deletes a registration of eventID. Organizer or admin only.
func (s *RegistrationService) Delete(ctx context.Context, eventID, id string, requester user.Principal) error {
	if requester.ID == "" {
		return registration.ErrUnauthorized
	}

	reg, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return s.wrapLedgerErr("get registration", err)
	}
	if reg.EventID != eventID {
		return registration.ErrNotFound
	}

	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !organizes(ev, requester) {
		return registration.ErrForbidden
	}

	if err := s.ledger.Delete(ctx, id); err != nil {
		return s.wrapLedgerErr("delete registration", err)
	}

	s.log.InfoContext(ctx, "registration.deleted",
		slog.String("registration_id", id),
		slog.String("event_id", eventID),
		slog.String("by", requester.ID),
	)
	return nil
}

// loadOwned loads a registration the requester may mutate, together with
// its event, and rejects events that already took place.
func (s *RegistrationService) loadOwned(ctx context.Context, id string, requester user.Principal) (registration.Registration, event.Event, error) {
	if requester.ID == "" {
		return registration.Registration{}, event.Event{}, registration.ErrUnauthorized
	}

	reg, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return registration.Registration{}, event.Event{}, s.wrapLedgerErr("get registration", err)
	}
	if reg.RegistrantID != requester.ID && !requester.IsAdmin() {
		return registration.Registration{}, event.Event{}, registration.ErrForbidden
	}

	ev, err := s.loadEvent(ctx, reg.EventID)
	if err != nil {
		return registration.Registration{}, event.Event{}, err
	}
	if ev.IsPast(s.now()) {
		return registration.Registration{}, event.Event{}, registration.ErrEventClosed
	}

	return reg, ev, nil
}

func (s *RegistrationService) transition(ctx context.Context, reg registration.Registration, to registration.Status) (registration.Registration, error) {
	if !registration.CanTransition(reg.PaymentStatus, to) {
		return registration.Registration{}, registration.ErrInvalidTransition
	}

	updated, err := s.ledger.UpdateStatus(ctx, reg.ID, reg.PaymentStatus, to, s.now().UTC())
	if err != nil {
		if errors.Is(err, registration.ErrConflict) {
			return registration.Registration{}, fmt.Errorf("%w: %w", registration.ErrInvalidTransition, err)
		}
		return registration.Registration{}, s.wrapLedgerErr("update status", err)
	}
	return updated, nil
}

func (s *RegistrationService) loadEvent(ctx context.Context, id string) (event.Event, error) {
	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("load event: %w", err)
	}
	return ev, nil
}

func (s *RegistrationService) wrapLedgerErr(op string, err error) error {
	if errors.Is(err, registration.ErrNotFound) {
		return registration.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *RegistrationService) enqueueCancellation(ctx context.Context, ev event.Event, reg registration.Registration) {
	s.enqueue(ctx, jobs.JobSendCancellationNotice, jobs.CancellationNoticePayload{
		RegistrationID: reg.ID,
		EventID:        ev.ID,
		EventTitle:     ev.Title,
		Email:          reg.Email,
		Name:           reg.Name,
		TicketCode:     reg.TicketCode,
		RequestedAt:    s.now().UTC(),
	})
}

// enqueue never fails the caller; the registration is already durable.
func (s *RegistrationService) enqueue(ctx context.Context, t jobs.JobType, payload any) {
	if s.queue == nil {
		return
	}

	j, err := jobs.Build(t, payload)
	if err != nil {
		s.log.WarnContext(ctx, "jobs.build_failed", slog.String("job_type", string(t)), slog.Any("err", err))
		return
	}

	if err := s.queue.Enqueue(ctx, j); err != nil {
		s.log.ErrorContext(ctx, "jobs.enqueue_failed",
			slog.String("job_type", string(t)),
			slog.String("job_id", j.ID),
			slog.Any("err", err),
		)
	}
}

func (s *RegistrationService) recordAdmission(reg registration.Registration, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveAdmission(AdmissionResult(reg, err))
}

// AdmissionResult maps an admission outcome to a metric label.
func AdmissionResult(reg registration.Registration, err error) string {
	switch {
	case err == nil && reg.IsLastMinute:
		return "last_minute"
	case err == nil:
		return "admitted"
	case errors.Is(err, registration.ErrAlreadyRegistered):
		return "duplicate"
	case errors.Is(err, registration.ErrEventFull):
		return "full"
	case errors.Is(err, registration.ErrEventClosed):
		return "closed"
	case errors.Is(err, event.ErrNotFound):
		return "event_not_found"
	case errors.Is(err, registration.ErrInvalidPartySize),
		errors.Is(err, registration.ErrInvalidParty),
		errors.Is(err, registration.ErrMissingPaymentProof),
		errors.Is(err, registration.ErrInvalidTicketType):
		return "invalid"
	case errors.Is(err, registration.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

func organizes(ev event.Event, p user.Principal) bool {
	return p.IsAdmin() || (p.ID != "" && ev.CreatedBy == p.ID)
}
