package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/http/middlewares"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/gin-gonic/gin"
)

// Registrations is the admission surface the handlers drive.
type Registrations interface {
	Register(ctx context.Context, eventID string, registrant user.Principal, party registration.PartyInfo, lastMinute bool) (registration.Registration, error)
	Cancel(ctx context.Context, id string, requester user.Principal) (registration.Registration, error)
	Update(ctx context.Context, id string, requester user.Principal, patch registration.Patch) (registration.Registration, error)
	SetPaymentStatus(ctx context.Context, id string, requester user.Principal, to registration.Status) (registration.Registration, error)
	Get(ctx context.Context, id string, requester user.Principal) (registration.Registration, error)
	ListForEvent(ctx context.Context, eventID string, requester user.Principal) ([]registration.Registration, error)
	ListMine(ctx context.Context, requester user.Principal) ([]registration.Registration, error)
	Delete(ctx context.Context, eventID, id string, requester user.Principal) error
}

type RegistrationHandler struct {
	svc Registrations
}

func NewRegistrationHandler(svc Registrations) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// Register: POST /events/:id/registrations
func (h *RegistrationHandler) Register(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	eventID, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}

	var req registration.CreateRegistrationRequest
	if !BindJSON(ctx, &req) {
		return
	}

	party, err := req.PartyInfo()
	if err != nil {
		RespondDomainError(ctx, err, "Could not register for event")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	reg, err := h.svc.Register(cctx, eventID, p, party, req.LastMinute)
	if err != nil {
		RespondDomainError(ctx, err, "Could not register for event")
		return
	}

	ctx.Request = ctx.Request.WithContext(observability.WithRegistrationID(ctx.Request.Context(), reg.ID))

	ctx.JSON(http.StatusCreated, reg)
}

// ListForEvent: GET /events/:id/registrations
func (h *RegistrationHandler) ListForEvent(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	eventID, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	regs, err := h.svc.ListForEvent(cctx, eventID, p)
	if err != nil {
		RespondDomainError(ctx, err, "Could not list registrations")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"eventId":       eventID,
		"count":         len(regs),
		"registrations": regs,
	})
}

// DeleteForEvent: DELETE /events/:id/registrations/:registrationId
func (h *RegistrationHandler) DeleteForEvent(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	eventID, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}
	regID, ok := registrationParam(ctx, "registrationId")
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Delete(cctx, eventID, regID, p); err != nil {
		RespondDomainError(ctx, err, "Could not delete registration")
		return
	}

	ctx.Status(http.StatusNoContent)
}

// ListMine: GET /me/registrations
func (h *RegistrationHandler) ListMine(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	regs, err := h.svc.ListMine(cctx, p)
	if err != nil {
		RespondDomainError(ctx, err, "Could not list registrations")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"count":         len(regs),
		"registrations": regs,
	})
}

func (h *RegistrationHandler) Get(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	id, ok := registrationParam(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	reg, err := h.svc.Get(cctx, id, p)
	if err != nil {
		RespondDomainError(ctx, err, "Could not fetch registration")
		return
	}

	ctx.JSON(http.StatusOK, reg)
}

// Update: PATCH /registrations/:id
func (h *RegistrationHandler) Update(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	id, ok := registrationParam(ctx, "id")
	if !ok {
		return
	}

	var patch registration.Patch
	if !BindJSON(ctx, &patch) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	reg, err := h.svc.Update(cctx, id, p, patch)
	if err != nil {
		RespondDomainError(ctx, err, "Could not update registration")
		return
	}

	ctx.JSON(http.StatusOK, reg)
}

// Cancel: DELETE /registrations/:id. The record stays with status Cancelled.
func (h *RegistrationHandler) Cancel(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	id, ok := registrationParam(ctx, "id")
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	reg, err := h.svc.Cancel(cctx, id, p)
	if err != nil {
		RespondDomainError(ctx, err, "Could not cancel registration")
		return
	}

	ctx.JSON(http.StatusOK, reg)
}

// Payment: POST /registrations/:id/payment
func (h *RegistrationHandler) Payment(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}
	id, ok := registrationParam(ctx, "id")
	if !ok {
		return
	}

	var req registration.PaymentRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	reg, err := h.svc.SetPaymentStatus(cctx, id, p, registration.Status(req.Status))
	if err != nil {
		RespondDomainError(ctx, err, "Could not update payment status")
		return
	}

	ctx.JSON(http.StatusOK, reg)
}

// registrationParam reads a registration id from the path and tags the
// request context with it.
func registrationParam(ctx *gin.Context, name string) (string, bool) {
	id, ok := uuidParam(ctx, name)
	if !ok {
		return "", false
	}
	ctx.Request = ctx.Request.WithContext(observability.WithRegistrationID(ctx.Request.Context(), id))
	return id, true
}

func principal(ctx *gin.Context) (user.Principal, bool) {
	p, ok := middlewares.PrincipalFromContext(ctx)
	if !ok || p.ID == "" {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity")
		return user.Principal{}, false
	}
	return p, true
}
