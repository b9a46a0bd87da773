package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/storage"
	"github.com/gin-gonic/gin"
)

type BlobStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Open(ref string) (*os.File, error)
}

// RegistrationReader resolves a registration the caller is allowed to see.
type RegistrationReader interface {
	Get(ctx context.Context, id string, requester user.Principal) (registration.Registration, error)
}

type UploadsHandler struct {
	store BlobStore
	regs  RegistrationReader
}

func NewUploadsHandler(store BlobStore, regs RegistrationReader) *UploadsHandler {
	return &UploadsHandler{store: store, regs: regs}
}

// PaymentProof: POST /uploads/payment-proof (multipart field "file").
// The returned ref goes into a team registration's paymentProofRef.
func (h *UploadsHandler) PaymentProof(ctx *gin.Context) {
	if _, ok := principal(ctx); !ok {
		return
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		RespondBadRequest(ctx, "A multipart file field named \"file\" is required", nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		RespondBadRequest(ctx, "Could not read uploaded file", nil)
		return
	}
	defer f.Close()

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	ref, err := h.store.Save(cctx, fh.Filename, f)
	if err != nil {
		RespondDomainError(ctx, err, "Could not store file")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"ref": ref})
}

// RegistrationProof: GET /registrations/:id/payment-proof
// Visible to the registrant, the event creator and admins.
func (h *UploadsHandler) RegistrationProof(ctx *gin.Context) {
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

	reg, err := h.regs.Get(cctx, id, p)
	if err != nil {
		RespondDomainError(ctx, err, "Could not load registration")
		return
	}
	if reg.PaymentProofRef == "" {
		RespondDomainError(ctx, storage.ErrNotFound, "")
		return
	}

	f, err := h.store.Open(reg.PaymentProofRef)
	if err != nil {
		RespondDomainError(ctx, err, "Could not open payment proof")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		RespondDomainError(ctx, err, "Could not open payment proof")
		return
	}

	ctx.Header("Content-Disposition", `attachment; filename="`+reg.PaymentProofRef+`"`)
	ctx.Header("Cache-Control", "private, no-store")
	http.ServeContent(ctx.Writer, ctx.Request, reg.PaymentProofRef, info.ModTime(), f)
}
