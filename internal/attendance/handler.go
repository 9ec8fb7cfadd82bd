package attendance

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/pkg/response"
)

// ScanRequest is the body for POST /attendance/events/:id/scan.
type ScanRequest struct {
	Payload  string `json:"payload"`
	TicketID string `json:"ticket_id"`
}

// ManualRequest is the body for POST /attendance/events/:id/manual.
type ManualRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	Note     string `json:"note"`
}

// Handler handles attendance HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an attendance handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func eventParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

// Scan handles POST /attendance/events/:id/scan.
func (h *Handler) Scan(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.Scan(c.Request.Context(), ScanInput{
		EventID:     eventID,
		OrganizerID: middleware.MustUserID(c),
		Payload:     req.Payload,
		TicketID:    req.TicketID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// Manual handles POST /attendance/events/:id/manual.
func (h *Handler) Manual(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	var req ManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.Manual(c.Request.Context(), ManualInput{
		EventID:     eventID,
		OrganizerID: middleware.MustUserID(c),
		TicketID:    req.TicketID,
		Note:        req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// Summary handles GET /attendance/events/:id.
func (h *Handler) Summary(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	s, err := h.svc.Summary(c.Request.Context(), eventID, middleware.MustUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}
