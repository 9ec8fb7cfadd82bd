package forms

import (
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/response"
)

// SaveRequest is the body for PUT /organizer/forms/events/:id.
type SaveRequest struct {
	Fields []models.FormField `json:"fields"`
}

func (r *SaveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Fields, validation.Length(0, MaxFields)),
	)
}

// Handler handles form HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a form handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Get handles GET /forms/events/:id.
func (h *Handler) Get(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	view, err := h.svc.Get(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Save handles PUT /organizer/forms/events/:id.
func (h *Handler) Save(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, apperr.Invalid(err))
		return
	}
	view, err := h.svc.Save(c.Request.Context(), eventID, middleware.MustUserID(c), req.Fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}
