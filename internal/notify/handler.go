package notify

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/response"
)

// LogStore reads notification logs.
type LogStore interface {
	ListNotificationLogs(ctx context.Context, eventID uuid.UUID) ([]models.NotificationLog, error)
}

// OwnerChecker resolves the event an organizer owns.
type OwnerChecker interface {
	RequireOwner(ctx context.Context, eventID, organizerID uuid.UUID) (models.Event, error)
}

// Handler serves the notification log of an event to its owner.
type Handler struct {
	logs   LogStore
	owners OwnerChecker
}

// NewHandler creates a notification log handler.
func NewHandler(logs LogStore, owners OwnerChecker) *Handler {
	return &Handler{logs: logs, owners: owners}
}

// List handles GET /organizer/events/:id/notifications.
func (h *Handler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	organizerID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user")
		return
	}
	if _, err := h.owners.RequireOwner(c.Request.Context(), eventID, organizerID); err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.logs.ListNotificationLogs(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}
