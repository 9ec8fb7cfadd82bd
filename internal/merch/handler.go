package merch

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/response"
	"github.com/felicity-events/backend/pkg/storage"
)

// ProofStore receives payment proof files. *storage.S3 implements it.
type ProofStore interface {
	UploadPaymentProof(ctx context.Context, eventID, participantID uuid.UUID, contentType string, body io.Reader, size int64) (string, error)
	PresignPaymentProof(ctx context.Context, eventID, participantID uuid.UUID, contentType string) (storage.PresignedUpload, error)
}

// OrderRequest is the body for POST /merch/events/:id/orders.
type OrderRequest struct {
	Items           []LineInput `json:"items"`
	PaymentProofURL string      `json:"payment_proof_url"`
}

func (r *OrderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Items, validation.Required),
		validation.Field(&r.PaymentProofURL, validation.Required, validation.Length(1, 2048)),
	)
}

// Validate checks one line of an order body.
func (l LineInput) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.ItemName, validation.Required, validation.Length(1, 200)),
		validation.Field(&l.Quantity, validation.Required, validation.Min(1), validation.Max(MaxLineQuantity)),
	)
}

// RejectRequest is the optional body for POST /merch/orders/:id/reject.
type RejectRequest struct {
	Comment string `json:"comment"`
}

// PresignRequest is the body for POST /merch/events/:id/payment-proofs/presign.
type PresignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// Handler handles merch HTTP endpoints.
type Handler struct {
	svc    *Service
	proofs ProofStore
	logger *zap.Logger
}

// NewHandler creates a merch handler. proofs may be nil when no bucket is configured.
func NewHandler(svc *Service, proofs ProofStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, proofs: proofs, logger: logger}
}

func idParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// Catalog handles GET /merch/events/:id.
func (h *Handler) Catalog(c *gin.Context) {
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	items, err := h.svc.Catalog(c.Request.Context(), eventID, middleware.MustUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateOrder handles POST /merch/events/:id/orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		if req.PaymentProofURL == "" {
			response.Error(c, apperr.Validation(apperr.CodePaymentProofRequired, "payment proof is required"))
			return
		}
		response.Error(c, apperr.Invalid(err))
		return
	}
	order, err := h.svc.CreateOrder(c.Request.Context(), CreateOrderInput{
		EventID:         eventID,
		ParticipantID:   middleware.MustUserID(c),
		Items:           req.Items,
		PaymentProofURL: req.PaymentProofURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// ListOrders handles GET /merch/events/:id/orders?status=PENDING.
func (h *Handler) ListOrders(c *gin.Context) {
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	orders, err := h.svc.ListOrders(c.Request.Context(), eventID, middleware.MustUserID(c), models.OrderStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, orders)
}

// Approve handles POST /merch/orders/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	orderID, ok := idParam(c, "order")
	if !ok {
		return
	}
	res, err := h.svc.Approve(c.Request.Context(), orderID, middleware.MustUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Reject handles POST /merch/orders/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	orderID, ok := idParam(c, "order")
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	res, err := h.svc.Reject(c.Request.Context(), orderID, middleware.MustUserID(c), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// UploadProof handles POST /merch/events/:id/payment-proofs (multipart field "file").
func (h *Handler) UploadProof(c *gin.Context) {
	if h.proofs == nil {
		response.ServiceUnavailable(c, "payment proof uploads are not configured")
		return
	}
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fh.Size > storage.MaxProofFileSize {
		response.BadRequest(c, "file too large (max 5MB)")
		return
	}
	ct, ok := storage.ProofContentType(fh.Header.Get("Content-Type"), fh.Filename)
	if !ok {
		response.BadRequest(c, "unsupported file type")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "cannot read file")
		return
	}
	defer f.Close()

	url, err := h.proofs.UploadPaymentProof(c.Request.Context(), eventID, middleware.MustUserID(c), ct, f, fh.Size)
	if err != nil {
		h.logger.Error("payment proof upload failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "upload failed")
		return
	}
	response.Created(c, gin.H{"url": url})
}

// PresignProof handles POST /merch/events/:id/payment-proofs/presign.
func (h *Handler) PresignProof(c *gin.Context) {
	if h.proofs == nil {
		response.ServiceUnavailable(c, "payment proof uploads are not configured")
		return
	}
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ct, ok := storage.ProofContentType(req.ContentType, req.Filename)
	if !ok {
		response.BadRequest(c, "unsupported file type")
		return
	}
	up, err := h.proofs.PresignPaymentProof(c.Request.Context(), eventID, middleware.MustUserID(c), ct)
	if err != nil {
		h.logger.Error("presign failed", zap.Error(err))
		response.Internal(c, "presign failed")
		return
	}
	response.OK(c, up)
}
