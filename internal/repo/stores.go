package repo

import (
	"context"
	"fmt"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/db"
	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/geocoder89/eventpass/internal/repo/memory"
	"github.com/geocoder89/eventpass/internal/repo/mongodb"
	"github.com/geocoder89/eventpass/internal/repo/postgres"
	"github.com/geocoder89/eventpass/internal/service"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type EventStore interface {
	Create(ctx context.Context, e event.Event) (event.Event, error)
	GetByID(ctx context.Context, id string) (event.Event, error)
	List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, error)
	Update(ctx context.Context, e event.Event) (event.Event, error)
	Delete(ctx context.Context, id string) error
}

type Ledger interface {
	service.Ledger
	DeleteByEvent(ctx context.Context, eventID string) error
}

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Stores is one backend's set of repositories.
type Stores struct {
	Driver        string
	Events        EventStore
	Registrations Ledger
	Users         UserStore

	// Ping is nil for the in-memory backend.
	Ping  func(ctx context.Context) error
	Close func()
}

// Open connects to the backend named by cfg.StoreDriver and makes sure its
// schema or indexes exist.
func Open(ctx context.Context, cfg config.Config, prom *observability.Prom) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return Memory(), nil

	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &Stores{
			Driver:        config.StorePostgres,
			Events:        postgres.NewEventsRepo(pool, prom),
			Registrations: postgres.NewRegistrationsRepo(pool, prom),
			Users:         postgres.NewUsersRepo(pool, prom),
			Ping:          pool.Ping,
			Close:         pool.Close,
		}, nil

	case config.StoreMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		database := client.Database(cfg.MongoDB)
		if err := mongodb.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return &Stores{
			Driver:        config.StoreMongo,
			Events:        mongodb.NewEventsRepo(database, prom),
			Registrations: mongodb.NewRegistrationsRepo(database, prom),
			Users:         mongodb.NewUsersRepo(database, prom),
			Ping: func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			},
			Close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func Memory() *Stores {
	return &Stores{
		Driver:        config.StoreMemory,
		Events:        memory.NewEventsRepo(),
		Registrations: memory.NewRegistrationsRepo(),
		Users:         memory.NewUsersRepo(),
		Close:         func() {},
	}
}
