package registrations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/pkg/response"
)

// RegisterRequest is the body for POST /events/:id/register.
type RegisterRequest struct {
	FormAnswers map[string]string `json:"form_answers,omitempty"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register handles POST /events/:id/register. Creates the registration and its ticket.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req RegisterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	res, err := h.svc.Register(c.Request.Context(), RegisterInput{
		EventID:       eventID,
		ParticipantID: middleware.MustUserID(c),
		Answers:       req.FormAnswers,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Cancel handles DELETE /events/:id/registration.
func (h *Handler) Cancel(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	reg, err := h.svc.Cancel(c.Request.Context(), eventID, middleware.MustUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// Get handles GET /events/:id/registration.
func (h *Handler) Get(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), eventID, middleware.MustUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}
