package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/eventpass/internal/cache"
	"github.com/geocoder89/eventpass/internal/domain/event"
)

type Source interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

// Cached serves event lookups from a short-lived cache in front of the
// store. Writers must call Invalidate after changing an event.
//
// Invalidation is local to the process: another api instance keeps serving
// its copy for up to the TTL.
type Cached struct {
	src   Source
	cache *cache.Cache[event.Event]

	// gen is bumped by every Invalidate; a load started under an older
	// generation is returned but not stored.
	mu  sync.Mutex
	gen uint64
}

// NewCached with ttl <= 0 reads through to src on every call.
func NewCached(src Source, ttl time.Duration) *Cached {
	c := &Cached{src: src}
	if ttl > 0 {
		c.cache = cache.New[event.Event](ttl)
	}
	return c
}

func (c *Cached) GetByID(ctx context.Context, id string) (event.Event, error) {
	if c.cache == nil {
		return c.src.GetByID(ctx, id)
	}
	if ev, ok := c.cache.Get(id); ok {
		return ev, nil
	}

	c.mu.Lock()
	started := c.gen
	c.mu.Unlock()

	ev, err := c.src.GetByID(ctx, id)
	if err != nil {
		return event.Event{}, err
	}

	c.mu.Lock()
	if c.gen == started {
		c.cache.Set(id, ev)
	}
	c.mu.Unlock()

	return ev, nil
}

func (c *Cached) Invalidate(id string) {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	c.cache.Delete(id)
	c.mu.Unlock()
}
