package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; EnsureSchema runs it on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		department    TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id                         TEXT PRIMARY KEY,
		title                      TEXT NOT NULL,
		description                TEXT NOT NULL DEFAULT '',
		date                       TIMESTAMPTZ NOT NULL,
		time                       TEXT NOT NULL DEFAULT '',
		location                   TEXT NOT NULL DEFAULT '',
		base_fee                   DOUBLE PRECISION NOT NULL CHECK (base_fee >= 0),
		capacity                   INTEGER NOT NULL CHECK (capacity >= 1),
		last_minute_fee_multiplier DOUBLE PRECISION NOT NULL CHECK (last_minute_fee_multiplier >= 1),
		image_url                  TEXT NOT NULL DEFAULT '',
		created_by                 TEXT NOT NULL,
		created_at                 TIMESTAMPTZ NOT NULL,
		updated_at                 TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_date_idx ON events (date, id)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id                   TEXT PRIMARY KEY,
		event_id             TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		registrant_id        TEXT NOT NULL,
		variant              TEXT NOT NULL,
		party_key            TEXT NOT NULL,
		party_identifier     TEXT NOT NULL,
		party_size           INTEGER NOT NULL CHECK (party_size >= 1),
		name                 TEXT NOT NULL DEFAULT '',
		email                TEXT NOT NULL DEFAULT '',
		department           TEXT NOT NULL DEFAULT '',
		ticket_type          TEXT NOT NULL DEFAULT '',
		special_requirements TEXT NOT NULL DEFAULT '',
		dietary              TEXT NOT NULL DEFAULT '',
		members              JSONB,
		paper_title          TEXT NOT NULL DEFAULT '',
		abstract             TEXT NOT NULL DEFAULT '',
		fee_total            DOUBLE PRECISION NOT NULL,
		is_last_minute       BOOLEAN NOT NULL DEFAULT FALSE,
		payment_status       TEXT NOT NULL,
		payment_proof_ref    TEXT NOT NULL DEFAULT '',
		ticket_code          TEXT NOT NULL UNIQUE,
		registered_at        TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL
	)`,
	// one active registration per party per event; cancelled rows free the key
	`CREATE UNIQUE INDEX IF NOT EXISTS registrations_event_party_active_uniq
		ON registrations (event_id, party_key)
		WHERE payment_status <> 'Cancelled'`,
	`CREATE INDEX IF NOT EXISTS registrations_registrant_idx ON registrations (registrant_id, registered_at)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
