package mongodb

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EventsRepo struct {
	base
}

func NewEventsRepo(db *mongo.Database, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{base{col: db.Collection(eventsCollection), prom: prom}}
}

func (r *EventsRepo) Create(ctx context.Context, e event.Event) (event.Event, error) {
	err := r.observe("events.create", func() error {
		_, err := r.col.InsertOne(ctx, e)
		return err
	})
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	var e event.Event
	err := r.observe("events.get_by_id", func() error {
		return r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return event.Event{}, event.ErrNotFound
	}
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (r *EventsRepo) List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, error) {
	filter := bson.M{}

	date := bson.M{}
	if f.From != nil {
		date["$gte"] = *f.From
	}
	if f.To != nil {
		date["$lte"] = *f.To
	}
	if len(date) > 0 {
		filter["date"] = date
	}

	if f.Query != nil && strings.TrimSpace(*f.Query) != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(*f.Query)), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"location": pattern},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	out := make([]event.Event, 0)
	err := r.observe("events.list", func() error {
		cur, err := r.col.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var e event.Event
			if err := cur.Decode(&e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return cur.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EventsRepo) Update(ctx context.Context, e event.Event) (event.Event, error) {
	var res *mongo.UpdateResult
	err := r.observe("events.update", func() error {
		var err error
		res, err = r.col.ReplaceOne(ctx, bson.M{"_id": e.ID}, e)
		return err
	})
	if err != nil {
		return event.Event{}, err
	}
	if res.MatchedCount == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult
	err := r.observe("events.delete", func() error {
		var err error
		res, err = r.col.DeleteOne(ctx, bson.M{"_id": id})
		return err
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return event.ErrNotFound
	}
	return nil
}
