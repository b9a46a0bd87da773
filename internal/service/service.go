package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/jobs"
)

// Catalog is the read side of the event store the service needs.
type Catalog interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

// Ledger is the authoritative set of registrations.
//
// Insert must enforce uniqueness of (eventId, partyKey) among active rows
// atomically and report a clash as registration.ErrConflict. UpdateStatus
// is a compare-and-set on the current status and reports a lost race as
// registration.ErrConflict.
type Ledger interface {
	CountActive(ctx context.Context, eventID string) (int, error)
	FindByPartyKey(ctx context.Context, eventID, partyKey string) (registration.Registration, error)
	Insert(ctx context.Context, reg registration.Registration) (registration.Registration, error)
	GetByID(ctx context.Context, id string) (registration.Registration, error)
	UpdateStatus(ctx context.Context, id string, from, to registration.Status, at time.Time) (registration.Registration, error)
	UpdateDetails(ctx context.Context, reg registration.Registration) (registration.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error)
	ListByRegistrant(ctx context.Context, registrantID string) ([]registration.Registration, error)
	Delete(ctx context.Context, id string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

// ProofStore reports whether an uploaded payment proof reference resolves
// to a stored file.
type ProofStore interface {
	Exists(ref string) bool
}

// AdmissionRecorder counts admission outcomes by result label.
type AdmissionRecorder interface {
	ObserveAdmission(result string)
}

type Options struct {
	Logger  *slog.Logger
	Queue   JobQueue
	Metrics AdmissionRecorder
	Proofs  ProofStore
	Now     func() time.Time
}

type RegistrationService struct {
	events  Catalog
	ledger  Ledger
	queue   JobQueue
	metrics AdmissionRecorder
	proofs  ProofStore
	log     *slog.Logger
	now     func() time.Time
}

func NewRegistrationService(events Catalog, ledger Ledger, opts Options) *RegistrationService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &RegistrationService{
		events:  events,
		ledger:  ledger,
		queue:   opts.Queue,
		metrics: opts.Metrics,
		proofs:  opts.Proofs,
		log:     opts.Logger,
		now:     opts.Now,
	}
}
