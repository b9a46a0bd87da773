package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/jobs"
	"github.com/geocoder89/eventpass/internal/queue/redisqueue"
	"github.com/gin-gonic/gin"
)

// JobsAdmin is the operator view of the notification queue.
type JobsAdmin interface {
	ListDead(ctx context.Context, limit int) ([]jobs.Job, error)
	RequeueDead(ctx context.Context, id string) (jobs.Job, error)
	Depths(ctx context.Context) (redisqueue.Depths, error)
}

type AdminJobsHandler struct {
	queue JobsAdmin
}

func NewAdminJobsHandler(queue JobsAdmin) *AdminJobsHandler {
	return &AdminJobsHandler{queue: queue}
}

// ListDead: GET /admin/jobs/dead?limit=20
func (h *AdminJobsHandler) ListDead(ctx *gin.Context) {
	limit := 20
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			RespondBadRequest(ctx, "limit must be between 1 and 100", gin.H{"param": "limit"})
			return
		}
		limit = n
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, err := h.queue.ListDead(cctx, limit)
	if err != nil {
		RespondDomainError(ctx, err, "Could not list jobs")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit": limit,
		"count": len(items),
		"items": items,
	})
}

// Requeue: POST /admin/jobs/dead/:id/requeue
func (h *AdminJobsHandler) Requeue(ctx *gin.Context) {
	id, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	j, err := h.queue.RequeueDead(cctx, id)
	if err != nil {
		RespondDomainError(ctx, err, "Could not requeue job")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"jobId":  j.ID,
		"status": j.Status,
	})
}

// Stats: GET /admin/jobs/stats
func (h *AdminJobsHandler) Stats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	d, err := h.queue.Depths(cctx)
	if err != nil {
		RespondDomainError(ctx, err, "Could not read queue depths")
		return
	}

	ctx.JSON(http.StatusOK, d)
}
