package event

import (
	"time"

	"github.com/google/uuid"
)

func NewFromCreateRequest(req CreateEventRequest, createdBy string) Event {
	now := time.Now().UTC()

	return Event{
		ID:                      uuid.NewString(),
		Title:                   req.Title,
		Description:             req.Description,
		Date:                    req.Date.UTC(),
		Time:                    req.Time,
		Location:                req.Location,
		BaseFee:                 req.BaseFee,
		Capacity:                req.Capacity,
		LastMinuteFeeMultiplier: multiplierOrDefault(req.LastMinuteFeeMultiplier),
		ImageURL:                req.ImageURL,
		CreatedBy:               createdBy,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// ApplyUpdate returns a copy of e carrying the fields of req.
func (e Event) ApplyUpdate(req UpdateEventRequest) Event {
	e.Title = req.Title
	e.Description = req.Description
	e.Date = req.Date.UTC()
	e.Time = req.Time
	e.Location = req.Location
	e.BaseFee = req.BaseFee
	e.Capacity = req.Capacity
	e.LastMinuteFeeMultiplier = multiplierOrDefault(req.LastMinuteFeeMultiplier)
	e.ImageURL = req.ImageURL
	e.UpdatedAt = time.Now().UTC()
	return e
}

func multiplierOrDefault(m *float64) float64 {
	if m == nil || *m < 1 {
		return DefaultLastMinuteFeeMultiplier
	}
	return *m
}
