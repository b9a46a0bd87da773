package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/eventpass/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	eventsCollection        = "events"
	registrationsCollection = "registrations"
	usersCollection         = "users"

	activePartyIndex = "event_party_active_uniq"

	duplicateKeyCode = 11000
)

// isDuplicateOn reports whether err is a duplicate-key error raised by the
// named index. The server only names the index in the message.
func isDuplicateOn(err error, index string) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCodeWithMessage(duplicateKeyCode, "index: "+index+" ")
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repos rely on for correctness, in
// particular the partial unique index that makes Insert atomic.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(registrationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "partyKey", Value: 1}},
			Options: options.Index().
				SetName(activePartyIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "registeredAt", Value: 1}}},
		{Keys: bson.D{{Key: "registrantId", Value: 1}, {Key: "registeredAt", Value: 1}}},
		{Keys: bson.D{{Key: "ticketCode", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(eventsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}},
	})
	return err
}

type base struct {
	col  *mongo.Collection
	prom *observability.Prom
}

func (b base) observe(op string, fn func() error) error {
	return b.prom.ObserveDB(op, fn)
}
