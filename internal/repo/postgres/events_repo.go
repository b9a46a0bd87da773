package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventsRepo struct {
	base
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{base{pool: pool, prom: prom}}
}

const eventColumns = `id, title, description, date, time, location, base_fee, capacity,
	last_minute_fee_multiplier, image_url, created_by, created_at, updated_at`

func scanEvent(row pgx.Row, extra ...any) (event.Event, error) {
	var e event.Event
	dest := []any{
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Time, &e.Location, &e.BaseFee, &e.Capacity,
		&e.LastMinuteFeeMultiplier, &e.ImageURL, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return e, err
}

func (r *EventsRepo) Create(ctx context.Context, e event.Event) (event.Event, error) {
	err := r.observe("events.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO events (`+eventColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			e.ID, e.Title, e.Description, e.Date, e.Time, e.Location, e.BaseFee, e.Capacity,
			e.LastMinuteFeeMultiplier, e.ImageURL, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (e event.Event, err error) {
	err = r.observe("events.get_by_id", func() error {
		var scanErr error
		e, scanErr = scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Event{}, event.ErrNotFound
	}
	return e, err
}

func (r *EventsRepo) List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, error) {
	var conds []string
	var args []any
	pos := 1

	if f.From != nil {
		conds = append(conds, fmt.Sprintf("date >= $%d", pos))
		args = append(args, *f.From)
		pos++
	}
	if f.To != nil {
		conds = append(conds, fmt.Sprintf("date <= $%d", pos))
		args = append(args, *f.To)
		pos++
	}
	if f.Query != nil && strings.TrimSpace(*f.Query) != "" {
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR location ILIKE $%d)", pos, pos))
		args = append(args, "%"+strings.TrimSpace(*f.Query)+"%")
		pos++
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// stable ordering for pagination
	query += " ORDER BY date ASC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, f.Limit)
		pos++
	}
	query += fmt.Sprintf(" OFFSET $%d", pos)
	args = append(args, f.Offset)

	out := make([]event.Event, 0)
	err := r.observe("events.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EventsRepo) Update(ctx context.Context, e event.Event) (updated event.Event, err error) {
	err = r.observe("events.update", func() error {
		var scanErr error
		updated, scanErr = scanEvent(r.pool.QueryRow(ctx,
			`UPDATE events
			SET title = $2,
				description = $3,
				date = $4,
				time = $5,
				location = $6,
				base_fee = $7,
				capacity = $8,
				last_minute_fee_multiplier = $9,
				image_url = $10,
				updated_at = $11
			WHERE id = $1
			RETURNING `+eventColumns,
			e.ID, e.Title, e.Description, e.Date, e.Time, e.Location, e.BaseFee, e.Capacity,
			e.LastMinuteFeeMultiplier, e.ImageURL, e.UpdatedAt,
		))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Event{}, event.ErrNotFound
	}
	return updated, err
}

// Delete cascades to the event's registrations.
func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	var affected int64
	err := r.observe("events.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return event.ErrNotFound
	}
	return nil
}
