package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type EventStore interface {
	Create(ctx context.Context, e event.Event) (event.Event, error)
	GetByID(ctx context.Context, id string) (event.Event, error)
	List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, error)
	Update(ctx context.Context, e event.Event) (event.Event, error)
	Delete(ctx context.Context, id string) error
}

// EventCache is told about every write so cached reads never outlive one.
type EventCache interface {
	Invalidate(id string)
}

// RegistrationPurger removes registrations of a deleted event on backends
// without a cascading foreign key.
type RegistrationPurger interface {
	DeleteByEvent(ctx context.Context, eventID string) error
}

type EventsHandler struct {
	repo   EventStore
	cache  EventCache
	purger RegistrationPurger
}

func NewEventsHandler(repo EventStore, cache EventCache, purger RegistrationPurger) *EventsHandler {
	return &EventsHandler{repo: repo, cache: cache, purger: purger}
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	var req event.CreateEventRequest
	if !BindJSON(ctx, &req) {
		return
	}

	e := event.NewFromCreateRequest(req, p.ID)
	if err := e.Validate(); err != nil {
		RespondDomainError(ctx, err, "Could not create event")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	created, err := h.repo.Create(cctx, e)
	if err != nil {
		RespondDomainError(ctx, err, "Could not create event")
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

// ListEvents: GET /events?from=&to=&q=&limit=&offset=
func (h *EventsHandler) ListEvents(ctx *gin.Context) {
	filter, ok := parseEventFilter(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := h.repo.List(cctx, filter)
	if err != nil {
		RespondDomainError(ctx, err, "Could not list events")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":  items,
		"count":  len(items),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *EventsHandler) GetEventByID(ctx *gin.Context) {
	id, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	e, err := h.repo.GetByID(cctx, id)
	if err != nil {
		RespondDomainError(ctx, err, "Could not fetch event")
		return
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *EventsHandler) UpdateEvent(ctx *gin.Context) {
	existing, ok := h.loadManaged(ctx)
	if !ok {
		return
	}

	var req event.UpdateEventRequest
	if !BindJSON(ctx, &req) {
		return
	}

	next := existing.ApplyUpdate(req)
	if err := next.Validate(); err != nil {
		RespondDomainError(ctx, err, "Could not update event")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	updated, err := h.repo.Update(cctx, next)
	if err != nil {
		RespondDomainError(ctx, err, "Could not update event")
		return
	}
	h.invalidate(updated.ID)

	ctx.JSON(http.StatusOK, updated)
}

func (h *EventsHandler) DeleteEvent(ctx *gin.Context) {
	existing, ok := h.loadManaged(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.repo.Delete(cctx, existing.ID); err != nil {
		RespondDomainError(ctx, err, "Could not delete event")
		return
	}
	h.invalidate(existing.ID)

	if h.purger != nil {
		if err := h.purger.DeleteByEvent(cctx, existing.ID); err != nil {
			_ = ctx.Error(fmt.Errorf("purge registrations of event %s: %w", existing.ID, err))
		}
	}

	ctx.Status(http.StatusNoContent)
}

// loadManaged loads the event named in the path and checks the caller may
// change it: its creator or an admin.
func (h *EventsHandler) loadManaged(ctx *gin.Context) (event.Event, bool) {
	p, ok := principal(ctx)
	if !ok {
		return event.Event{}, false
	}

	id, ok := uuidParam(ctx, "id")
	if !ok {
		return event.Event{}, false
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	e, err := h.repo.GetByID(cctx, id)
	if err != nil {
		RespondDomainError(ctx, err, "Could not fetch event")
		return event.Event{}, false
	}

	if !canManage(e, p) {
		RespondForbidden(ctx, "Only the event creator or an admin can change this event")
		return event.Event{}, false
	}
	return e, true
}

func (h *EventsHandler) invalidate(id string) {
	if h.cache != nil {
		h.cache.Invalidate(id)
	}
}

func canManage(e event.Event, p user.Principal) bool {
	return p.IsAdmin() || (p.ID != "" && e.CreatedBy == p.ID)
}

func parseEventFilter(ctx *gin.Context) (event.ListEventsFilter, bool) {
	f := event.ListEventsFilter{Limit: defaultListLimit}

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			RespondBadRequest(ctx, "limit must be between 1 and 100", gin.H{"param": "limit"})
			return f, false
		}
		f.Limit = n
	}

	if raw := ctx.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			RespondBadRequest(ctx, "offset must be a non-negative integer", gin.H{"param": "offset"})
			return f, false
		}
		f.Offset = n
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := ctx.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := parseTimeParam(raw)
		if err != nil {
			RespondBadRequest(ctx, p.name+" must be RFC3339 or YYYY-MM-DD", gin.H{"param": p.name})
			return f, false
		}
		*p.dst = &t
	}

	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		RespondBadRequest(ctx, "to must not be before from", nil)
		return f, false
	}

	if q := strings.TrimSpace(ctx.Query("q")); q != "" {
		f.Query = &q
	}

	return f, true
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
