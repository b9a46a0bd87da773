package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// registrationDoc adds the denormalized active flag the partial unique
// index filters on.
type registrationDoc struct {
	registration.Registration `bson:",inline"`
	Active                    bool `bson:"active"`
}

func toDoc(r registration.Registration) registrationDoc {
	return registrationDoc{Registration: r, Active: r.IsActive()}
}

type RegistrationsRepo struct {
	base
}

func NewRegistrationsRepo(db *mongo.Database, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{base{col: db.Collection(registrationsCollection), prom: prom}}
}

func (r *RegistrationsRepo) CountActive(ctx context.Context, eventID string) (int, error) {
	var n int64
	err := r.observe("registrations.count_active", func() error {
		var err error
		n, err = r.col.CountDocuments(ctx, bson.M{"eventId": eventID, "active": true})
		return err
	})
	return int(n), err
}

func (r *RegistrationsRepo) FindByPartyKey(ctx context.Context, eventID, partyKey string) (registration.Registration, error) {
	return r.findOne(ctx, "registrations.find_by_party_key", bson.M{
		"eventId":  eventID,
		"partyKey": partyKey,
		"active":   true,
	})
}

func (r *RegistrationsRepo) Insert(ctx context.Context, reg registration.Registration) (registration.Registration, error) {
	err := r.observe("registrations.insert", func() error {
		_, err := r.col.InsertOne(ctx, toDoc(reg))
		return err
	})
	if isDuplicateOn(err, activePartyIndex) {
		return registration.Registration{}, registration.ErrConflict
	}
	if err != nil {
		return registration.Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationsRepo) GetByID(ctx context.Context, id string) (registration.Registration, error) {
	return r.findOne(ctx, "registrations.get_by_id", bson.M{"_id": id})
}

// UpdateStatus is a compare-and-set on paymentStatus and keeps the active
// flag in step with the new status.
func (r *RegistrationsRepo) UpdateStatus(ctx context.Context, id string, from, to registration.Status, at time.Time) (registration.Registration, error) {
	var doc registrationDoc
	err := r.observe("registrations.update_status", func() error {
		return r.col.FindOneAndUpdate(ctx,
			bson.M{"_id": id, "paymentStatus": from},
			bson.M{"$set": bson.M{
				"paymentStatus": to,
				"updatedAt":     at,
				"active":        to.IsActive(),
			}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
	})
	if err == nil {
		return doc.Registration, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return registration.Registration{}, err
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return registration.Registration{}, getErr
	}
	return registration.Registration{}, registration.ErrConflict
}

func (r *RegistrationsRepo) UpdateDetails(ctx context.Context, next registration.Registration) (registration.Registration, error) {
	var doc registrationDoc
	err := r.observe("registrations.update_details", func() error {
		return r.col.FindOneAndUpdate(ctx,
			bson.M{"_id": next.ID},
			bson.M{"$set": bson.M{
				"ticketType":          next.TicketType,
				"specialRequirements": next.SpecialRequirements,
				"dietary":             next.Dietary,
				"updatedAt":           next.UpdatedAt,
			}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return registration.Registration{}, registration.ErrNotFound
	}
	if err != nil {
		return registration.Registration{}, err
	}
	return doc.Registration, nil
}

func (r *RegistrationsRepo) ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error) {
	return r.list(ctx, "registrations.list_by_event", bson.M{"eventId": eventID})
}

func (r *RegistrationsRepo) ListByRegistrant(ctx context.Context, registrantID string) ([]registration.Registration, error) {
	return r.list(ctx, "registrations.list_by_registrant", bson.M{"registrantId": registrantID})
}

func (r *RegistrationsRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult
	err := r.observe("registrations.delete", func() error {
		var err error
		res, err = r.col.DeleteOne(ctx, bson.M{"_id": id})
		return err
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return registration.ErrNotFound
	}
	return nil
}

func (r *RegistrationsRepo) DeleteByEvent(ctx context.Context, eventID string) error {
	return r.observe("registrations.delete_by_event", func() error {
		_, err := r.col.DeleteMany(ctx, bson.M{"eventId": eventID})
		return err
	})
}

func (r *RegistrationsRepo) findOne(ctx context.Context, op string, filter bson.M) (registration.Registration, error) {
	var doc registrationDoc
	err := r.observe(op, func() error {
		return r.col.FindOne(ctx, filter).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return registration.Registration{}, registration.ErrNotFound
	}
	if err != nil {
		return registration.Registration{}, err
	}
	return doc.Registration, nil
}

func (r *RegistrationsRepo) list(ctx context.Context, op string, filter bson.M) ([]registration.Registration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "registeredAt", Value: 1}, {Key: "_id", Value: 1}})

	out := make([]registration.Registration, 0)
	err := r.observe(op, func() error {
		cur, err := r.col.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc registrationDoc
			if err := cur.Decode(&doc); err != nil {
				return err
			}
			out = append(out, doc.Registration)
		}
		return cur.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
