package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const activePartyIndex = "registrations_event_party_active_uniq"

type RegistrationsRepo struct {
	base
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{base{pool: pool, prom: prom}}
}

const registrationColumns = `id, event_id, registrant_id, variant, party_key, party_identifier, party_size,
	name, email, department, ticket_type, special_requirements, dietary, members,
	paper_title, abstract, fee_total, is_last_minute, payment_status, payment_proof_ref,
	ticket_code, registered_at, updated_at`

func scanRegistration(row pgx.Row) (registration.Registration, error) {
	var r registration.Registration
	var variant, status string

	err := row.Scan(
		&r.ID, &r.EventID, &r.RegistrantID, &variant, &r.PartyKey, &r.PartyIdentifier, &r.PartySize,
		&r.Name, &r.Email, &r.Department, &r.TicketType, &r.SpecialRequirements, &r.Dietary, &r.Members,
		&r.PaperTitle, &r.Abstract, &r.FeeTotal, &r.IsLastMinute, &status, &r.PaymentProofRef,
		&r.TicketCode, &r.RegisteredAt, &r.UpdatedAt,
	)
	r.Variant = registration.Variant(variant)
	r.PaymentStatus = registration.Status(status)
	return r, err
}

func (repo *RegistrationsRepo) CountActive(ctx context.Context, eventID string) (int, error) {
	var total int
	err := repo.observe("registrations.count_active", func() error {
		return repo.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND payment_status <> $2`,
			eventID, string(registration.StatusCancelled),
		).Scan(&total)
	})
	return total, err
}

func (repo *RegistrationsRepo) FindByPartyKey(ctx context.Context, eventID, partyKey string) (reg registration.Registration, err error) {
	err = repo.observe("registrations.find_by_party_key", func() error {
		var scanErr error
		reg, scanErr = scanRegistration(repo.pool.QueryRow(ctx,
			`SELECT `+registrationColumns+`
			FROM registrations
			WHERE event_id = $1 AND party_key = $2 AND payment_status <> $3
			LIMIT 1`,
			eventID, partyKey, string(registration.StatusCancelled),
		))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return registration.Registration{}, registration.ErrNotFound
	}
	return reg, err
}

// Insert relies on the partial unique index for atomic duplicate
// rejection; a violation surfaces as registration.ErrConflict.
func (repo *RegistrationsRepo) Insert(ctx context.Context, reg registration.Registration) (registration.Registration, error) {
	members := reg.Members
	if len(members) == 0 {
		members = nil
	}

	err := repo.observe("registrations.insert", func() error {
		_, err := repo.pool.Exec(ctx,
			`INSERT INTO registrations (`+registrationColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
			reg.ID, reg.EventID, reg.RegistrantID, string(reg.Variant), reg.PartyKey, reg.PartyIdentifier, reg.PartySize,
			reg.Name, reg.Email, reg.Department, reg.TicketType, reg.SpecialRequirements, reg.Dietary, members,
			reg.PaperTitle, reg.Abstract, reg.FeeTotal, reg.IsLastMinute, string(reg.PaymentStatus), reg.PaymentProofRef,
			reg.TicketCode, reg.RegisteredAt, reg.UpdatedAt,
		)
		return err
	})
	if isUniqueViolation(err, activePartyIndex) {
		return registration.Registration{}, registration.ErrConflict
	}
	if err != nil {
		return registration.Registration{}, err
	}
	return reg, nil
}

func (repo *RegistrationsRepo) GetByID(ctx context.Context, id string) (reg registration.Registration, err error) {
	err = repo.observe("registrations.get_by_id", func() error {
		var scanErr error
		reg, scanErr = scanRegistration(repo.pool.QueryRow(ctx,
			`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return registration.Registration{}, registration.ErrNotFound
	}
	return reg, err
}

// UpdateStatus only applies when the row is still in status from. Losing
// that race yields registration.ErrConflict.
func (repo *RegistrationsRepo) UpdateStatus(ctx context.Context, id string, from, to registration.Status, at time.Time) (reg registration.Registration, err error) {
	err = repo.observe("registrations.update_status", func() error {
		var scanErr error
		reg, scanErr = scanRegistration(repo.pool.QueryRow(ctx,
			`UPDATE registrations
			SET payment_status = $3, updated_at = $4
			WHERE id = $1 AND payment_status = $2
			RETURNING `+registrationColumns,
			id, string(from), string(to), at,
		))
		return scanErr
	})
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return registration.Registration{}, err
	}

	// distinguish a missing row from a lost compare-and-set
	if _, getErr := repo.GetByID(ctx, id); getErr != nil {
		return registration.Registration{}, getErr
	}
	return registration.Registration{}, registration.ErrConflict
}

func (repo *RegistrationsRepo) UpdateDetails(ctx context.Context, next registration.Registration) (reg registration.Registration, err error) {
	err = repo.observe("registrations.update_details", func() error {
		var scanErr error
		reg, scanErr = scanRegistration(repo.pool.QueryRow(ctx,
			`UPDATE registrations
			SET ticket_type = $2, special_requirements = $3, dietary = $4, updated_at = $5
			WHERE id = $1
			RETURNING `+registrationColumns,
			next.ID, next.TicketType, next.SpecialRequirements, next.Dietary, next.UpdatedAt,
		))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return registration.Registration{}, registration.ErrNotFound
	}
	return reg, err
}

func (repo *RegistrationsRepo) ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error) {
	return repo.list(ctx, "registrations.list_by_event", `event_id = $1`, eventID)
}

func (repo *RegistrationsRepo) ListByRegistrant(ctx context.Context, registrantID string) ([]registration.Registration, error) {
	return repo.list(ctx, "registrations.list_by_registrant", `registrant_id = $1`, registrantID)
}

func (repo *RegistrationsRepo) list(ctx context.Context, op, where string, arg any) ([]registration.Registration, error) {
	out := make([]registration.Registration, 0)

	err := repo.observe(op, func() error {
		rows, err := repo.pool.Query(ctx,
			`SELECT `+registrationColumns+`
			FROM registrations
			WHERE `+where+`
			ORDER BY registered_at ASC, id ASC`,
			arg,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRegistration(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (repo *RegistrationsRepo) Delete(ctx context.Context, id string) error {
	var affected int64
	err := repo.observe("registrations.delete", func() error {
		tag, err := repo.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return registration.ErrNotFound
	}
	return nil
}

// DeleteByEvent is implied by the foreign key cascade but kept explicit so
// every backend offers the same contract.
func (repo *RegistrationsRepo) DeleteByEvent(ctx context.Context, eventID string) error {
	return repo.observe("registrations.delete_by_event", func() error {
		_, err := repo.pool.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1`, eventID)
		return err
	})
}
