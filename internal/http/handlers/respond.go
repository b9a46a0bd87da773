package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/jobs"
	"github.com/geocoder89/eventpass/internal/storage"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

type domainError struct {
	target  error
	status  int
	code    string
	message string
}

// first match wins; more specific sentinels must come first.
var domainErrors = []domainError{
	{registration.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Missing identity"},
	{registration.ErrForbidden, http.StatusForbidden, "forbidden", "You are not allowed to act on this registration"},
	{event.ErrNotFound, http.StatusNotFound, "event_not_found", "Event not found"},
	{registration.ErrNotFound, http.StatusNotFound, "not_found", "Registration not found"},
	{user.ErrNotFound, http.StatusNotFound, "user_not_found", "User not found"},
	{jobs.ErrJobNotFound, http.StatusNotFound, "job_not_found", "Job not found"},
	{storage.ErrNotFound, http.StatusNotFound, "file_not_found", "File not found"},
	{registration.ErrAlreadyRegistered, http.StatusConflict, "already_registered", "This party is already registered for this event"},
	{registration.ErrEventFull, http.StatusConflict, "event_full", "This event is already at full capacity"},
	{registration.ErrEventClosed, http.StatusConflict, "event_closed", "This event has already taken place"},
	{registration.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition", "Payment status change is not allowed"},
	{registration.ErrInactive, http.StatusConflict, "registration_inactive", "Registration is no longer active"},
	{user.ErrEmailAlreadyUsed, http.StatusConflict, "email_taken", "Email is already in use"},
	{registration.ErrInvalidPartySize, http.StatusUnprocessableEntity, "invalid_party_size", "Team size must be between 2 and 4 and match the member list"},
	{registration.ErrMissingPaymentProof, http.StatusUnprocessableEntity, "missing_payment_proof", "Team registrations require a payment proof"},
	{registration.ErrInvalidParty, http.StatusUnprocessableEntity, "invalid_party", "Party details are invalid"},
	{registration.ErrInvalidTicketType, http.StatusBadRequest, "invalid_ticket_type", "Unknown ticket type"},
	{event.ErrInvalidCapacity, http.StatusBadRequest, "invalid_capacity", "Capacity must be at least 1"},
	{event.ErrInvalidMultiplier, http.StatusBadRequest, "invalid_multiplier", "Last-minute fee multiplier must be at least 1"},
	{event.ErrInvalidFee, http.StatusBadRequest, "invalid_fee", "Base fee must not be negative"},
	{storage.ErrTooLarge, http.StatusRequestEntityTooLarge, "file_too_large", "File is too large"},
	{storage.ErrUnsupportedType, http.StatusUnsupportedMediaType, "unsupported_file_type", "Only PDF, PNG and JPEG files are accepted"},
}

// RespondDomainError maps known sentinel errors to their HTTP shape and
// falls back to a 500 with fallback as the message.
func RespondDomainError(ctx *gin.Context, err error, fallback string) {
	for _, de := range domainErrors {
		if errors.Is(err, de.target) {
			RespondError(ctx, de.status, de.code, de.message, nil)
			return
		}
	}

	_ = ctx.Error(err)
	RespondInternal(ctx, fallback)
}
