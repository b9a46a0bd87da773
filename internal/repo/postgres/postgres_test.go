package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geocoder89/eventpass/internal/db"
	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database: TEST_DB_DSN=postgres://...
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.EnsureSchema(ctx, pool))
	return pool
}

func seedEvent(t *testing.T, repo *EventsRepo) event.Event {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	e, err := repo.Create(context.Background(), event.Event{
		ID:                      uuid.NewString(),
		Title:                   "Go Workshop",
		Date:                    now.Add(72 * time.Hour),
		Location:                "Hall A",
		BaseFee:                 100,
		Capacity:                2,
		LastMinuteFeeMultiplier: 1.75,
		CreatedBy:               uuid.NewString(),
		CreatedAt:               now,
		UpdatedAt:               now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Delete(context.Background(), e.ID) })
	return e
}

func pendingReg(eventID, partyKey string) registration.Registration {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	return registration.Registration{
		ID:              id,
		EventID:         eventID,
		RegistrantID:    uuid.NewString(),
		Variant:         registration.VariantIndividual,
		PartyKey:        partyKey,
		PartyIdentifier: "someone@example.com",
		PartySize:       1,
		FeeTotal:        100,
		PaymentStatus:   registration.StatusPending,
		TicketCode:      registration.NewTicketCode(id),
		RegisteredAt:    now,
		UpdatedAt:       now,
	}
}

func TestRegistrationsRepo_PartialUniqueIndex(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	events := NewEventsRepo(pool, nil)
	regs := NewRegistrationsRepo(pool, nil)

	ev := seedEvent(t, events)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := regs.Insert(ctx, pendingReg(ev.ID, "user:same"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, registration.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(9), conflicts.Load())

	active, err := regs.FindByPartyKey(ctx, ev.ID, "user:same")
	require.NoError(t, err)

	n, err := regs.CountActive(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = regs.UpdateStatus(ctx, active.ID, registration.StatusPending, registration.StatusCancelled, time.Now().UTC())
	require.NoError(t, err)

	// cancelled rows free the key
	_, err = regs.Insert(ctx, pendingReg(ev.ID, "user:same"))
	require.NoError(t, err)

	// stale compare-and-set
	_, err = regs.UpdateStatus(ctx, active.ID, registration.StatusPending, registration.StatusPaid, time.Now().UTC())
	require.ErrorIs(t, err, registration.ErrConflict)

	_, err = regs.UpdateStatus(ctx, uuid.NewString(), registration.StatusPending, registration.StatusPaid, time.Now().UTC())
	require.ErrorIs(t, err, registration.ErrNotFound)
}

func TestRegistrationsRepo_TeamMembersRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	events := NewEventsRepo(pool, nil)
	regs := NewRegistrationsRepo(pool, nil)

	ev := seedEvent(t, events)

	r := pendingReg(ev.ID, "team:gophers")
	r.Variant = registration.VariantTeam
	r.PartySize = 3
	r.Members = []registration.Member{{Name: "A"}, {Name: "B"}, {Name: "C", Email: "c@example.com"}}
	r.PaymentProofRef = "proof_1.pdf"

	_, err := regs.Insert(ctx, r)
	require.NoError(t, err)

	got, err := regs.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, registration.VariantTeam, got.Variant)
	require.Equal(t, r.Members, got.Members)
	require.Equal(t, registration.StatusPending, got.PaymentStatus)

	list, err := regs.ListByEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestEventsRepo_ListFilter(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	events := NewEventsRepo(pool, nil)

	ev := seedEvent(t, events)

	q := "hall a"
	from := ev.Date.Add(-time.Hour)
	to := ev.Date.Add(time.Hour)
	list, err := events.List(ctx, event.ListEventsFilter{From: &from, To: &to, Query: &q, Limit: 50})
	require.NoError(t, err)

	found := false
	for _, e := range list {
		if e.ID == ev.ID {
			found = true
		}
	}
	require.True(t, found)

	_, err = events.GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, event.ErrNotFound)
}

func TestUsersRepo_EmailUnique(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUsersRepo(pool, nil)

	email := uuid.NewString() + "@Example.com"
	now := time.Now().UTC()
	u := user.User{ID: uuid.NewString(), Email: email, PasswordHash: "x", Role: user.RoleStudent, CreatedAt: now, UpdatedAt: now}

	_, err := users.Create(ctx, u)
	require.NoError(t, err)

	u.ID = uuid.NewString()
	_, err = users.Create(ctx, u)
	require.ErrorIs(t, err, user.ErrEmailAlreadyUsed)

	got, err := users.GetByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, u.Role, got.Role)
}
