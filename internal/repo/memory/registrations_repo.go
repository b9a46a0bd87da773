package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/eventpass/internal/domain/registration"
)

// RegistrationsRepo keeps the ledger in process. One mutex guards both the
// rows and the active party-key index, so Insert is atomic.
type RegistrationsRepo struct {
	mu     sync.RWMutex
	items  map[string]registration.Registration
	active map[string]string // eventID|partyKey -> registration id
}

func NewRegistrationsRepo() *RegistrationsRepo {
	return &RegistrationsRepo{
		items:  make(map[string]registration.Registration),
		active: make(map[string]string),
	}
}

func partyIndexKey(eventID, partyKey string) string {
	return eventID + "|" + partyKey
}

func (r *RegistrationsRepo) CountActive(_ context.Context, eventID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, reg := range r.items {
		if reg.EventID == eventID && reg.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *RegistrationsRepo) FindByPartyKey(_ context.Context, eventID, partyKey string) (registration.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[partyIndexKey(eventID, partyKey)]
	if !ok {
		return registration.Registration{}, registration.ErrNotFound
	}
	return r.items[id], nil
}

func (r *RegistrationsRepo) Insert(_ context.Context, reg registration.Registration) (registration.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := partyIndexKey(reg.EventID, reg.PartyKey)
	if reg.IsActive() {
		if _, taken := r.active[key]; taken {
			return registration.Registration{}, registration.ErrConflict
		}
		r.active[key] = reg.ID
	}
	r.items[reg.ID] = reg
	return reg, nil
}

func (r *RegistrationsRepo) GetByID(_ context.Context, id string) (registration.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.items[id]
	if !ok {
		return registration.Registration{}, registration.ErrNotFound
	}
	return reg, nil
}

func (r *RegistrationsRepo) UpdateStatus(_ context.Context, id string, from, to registration.Status, at time.Time) (registration.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.items[id]
	if !ok {
		return registration.Registration{}, registration.ErrNotFound
	}
	if reg.PaymentStatus != from {
		return registration.Registration{}, registration.ErrConflict
	}

	reg.PaymentStatus = to
	reg.UpdatedAt = at
	r.items[id] = reg

	if !to.IsActive() {
		key := partyIndexKey(reg.EventID, reg.PartyKey)
		if r.active[key] == id {
			delete(r.active, key)
		}
	}
	return reg, nil
}

func (r *RegistrationsRepo) UpdateDetails(_ context.Context, next registration.Registration) (registration.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.items[next.ID]
	if !ok {
		return registration.Registration{}, registration.ErrNotFound
	}

	reg.TicketType = next.TicketType
	reg.SpecialRequirements = next.SpecialRequirements
	reg.Dietary = next.Dietary
	reg.UpdatedAt = next.UpdatedAt
	r.items[reg.ID] = reg
	return reg, nil
}

func (r *RegistrationsRepo) ListByEvent(_ context.Context, eventID string) ([]registration.Registration, error) {
	return r.filter(func(reg registration.Registration) bool { return reg.EventID == eventID }), nil
}

func (r *RegistrationsRepo) ListByRegistrant(_ context.Context, registrantID string) ([]registration.Registration, error) {
	return r.filter(func(reg registration.Registration) bool { return reg.RegistrantID == registrantID }), nil
}

func (r *RegistrationsRepo) filter(keep func(registration.Registration) bool) []registration.Registration {
	r.mu.RLock()
	out := make([]registration.Registration, 0)
	for _, reg := range r.items {
		if keep(reg) {
			out = append(out, reg)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

func (r *RegistrationsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.items[id]
	if !ok {
		return registration.ErrNotFound
	}

	key := partyIndexKey(reg.EventID, reg.PartyKey)
	if r.active[key] == id {
		delete(r.active, key)
	}
	delete(r.items, id)
	return nil
}

// DeleteByEvent drops every registration of an event, mirroring the
// cascade of the relational schema.
func (r *RegistrationsRepo) DeleteByEvent(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, reg := range r.items {
		if reg.EventID != eventID {
			continue
		}
		delete(r.active, partyIndexKey(reg.EventID, reg.PartyKey))
		delete(r.items, id)
	}
	return nil
}
