package event

import (
	"errors"
	"time"
)

// DefaultLastMinuteFeeMultiplier applies when an organizer does not set one.
const DefaultLastMinuteFeeMultiplier = 1.75

type Event struct {
	ID                      string    `json:"id" bson:"_id"`
	Title                   string    `json:"title" bson:"title"`
	Description             string    `json:"description,omitempty" bson:"description"`
	Date                    time.Time `json:"date" bson:"date"`
	Time                    string    `json:"time,omitempty" bson:"time"`
	Location                string    `json:"location,omitempty" bson:"location"`
	BaseFee                 float64   `json:"baseFee" bson:"baseFee"`
	Capacity                int       `json:"capacity" bson:"capacity"`
	LastMinuteFeeMultiplier float64   `json:"lastMinuteFeeMultiplier" bson:"lastMinuteFeeMultiplier"`
	ImageURL                string    `json:"imageUrl,omitempty" bson:"imageUrl"`
	CreatedBy               string    `json:"createdBy" bson:"createdBy"`
	CreatedAt               time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IsPast reports whether the event date is strictly before now.
func (e Event) IsPast(now time.Time) bool {
	return e.Date.Before(now)
}

func (e Event) Validate() error {
	if e.Capacity < 1 {
		return ErrInvalidCapacity
	}
	if e.LastMinuteFeeMultiplier < 1 {
		return ErrInvalidMultiplier
	}
	if e.BaseFee < 0 {
		return ErrInvalidFee
	}
	return nil
}

// with pointers if optional, it will be nil
type ListEventsFilter struct {
	From   *time.Time
	To     *time.Time
	Query  *string
	Limit  int
	Offset int
}

var (
	ErrNotFound          = errors.New("event not found")
	ErrInvalidCapacity   = errors.New("capacity must be at least 1")
	ErrInvalidMultiplier = errors.New("last-minute fee multiplier must be at least 1")
	ErrInvalidFee        = errors.New("base fee must not be negative")
)

type CreateEventRequest struct {
	Title                   string    `json:"title" binding:"required,min=3,max=120"`
	Description             string    `json:"description" binding:"omitempty,max=2000"`
	Date                    time.Time `json:"date" binding:"required"`
	Time                    string    `json:"time" binding:"omitempty,max=40"`
	Location                string    `json:"location" binding:"omitempty,min=2,max=200"`
	BaseFee                 float64   `json:"baseFee" binding:"gte=0"`
	Capacity                int       `json:"capacity" binding:"required,min=1,max=50000"`
	LastMinuteFeeMultiplier *float64  `json:"lastMinuteFeeMultiplier" binding:"omitempty,gte=1"`
	ImageURL                string    `json:"imageUrl" binding:"omitempty,max=500"`
}

// a full update payload; the owner is never changed by an update.
type UpdateEventRequest struct {
	Title                   string    `json:"title" binding:"required,min=3,max=120"`
	Description             string    `json:"description" binding:"omitempty,max=2000"`
	Date                    time.Time `json:"date" binding:"required"`
	Time                    string    `json:"time" binding:"omitempty,max=40"`
	Location                string    `json:"location" binding:"omitempty,min=2,max=200"`
	BaseFee                 float64   `json:"baseFee" binding:"gte=0"`
	Capacity                int       `json:"capacity" binding:"required,min=1,max=50000"`
	LastMinuteFeeMultiplier *float64  `json:"lastMinuteFeeMultiplier" binding:"omitempty,gte=1"`
	ImageURL                string    `json:"imageUrl" binding:"omitempty,max=500"`
}
