package events

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/response"
)

// CreateRequest is the body for POST /organizer/events.
type CreateRequest struct {
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	Type                 models.EventType   `json:"type"`
	Eligibility          models.Eligibility `json:"eligibility"`
	StartDate            *time.Time         `json:"start_date"`
	EndDate              *time.Time         `json:"end_date"`
	RegistrationDeadline *time.Time         `json:"registration_deadline"`
	RegistrationLimit    *int               `json:"registration_limit"`
	RegistrationFee      float64            `json:"registration_fee"`
	Tags                 []string           `json:"tags"`
	MerchItems           []models.MerchItem `json:"merch_items"`
}

func (r *CreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 200)),
		validation.Field(&r.Description, validation.Length(0, 5000)),
		validation.Field(&r.Type, validation.In(models.EventTypeNormal, models.EventTypeMerch)),
		validation.Field(&r.Eligibility, validation.In(models.EligibilityAll, models.EligibilityIIIT, models.EligibilityNonIIIT)),
		validation.Field(&r.RegistrationLimit, validation.Min(1)),
		validation.Field(&r.RegistrationFee, validation.Min(0.0)),
	)
}

// MerchItemsRequest is the body for PUT /organizer/events/:id/merch-items.
type MerchItemsRequest struct {
	Items []models.MerchItem `json:"items"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an event handler.
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

func caller(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user")
	}
	return id, ok
}

// Create handles POST /organizer/events.
func (h *Handler) Create(c *gin.Context) {
	organizerID, ok := caller(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, apperr.Invalid(err))
		return
	}
	ev, err := h.svc.Create(c.Request.Context(), CreateInput{
		OrganizerID:          organizerID,
		Name:                 req.Name,
		Description:          req.Description,
		Type:                 req.Type,
		Eligibility:          req.Eligibility,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		RegistrationDeadline: req.RegistrationDeadline,
		RegistrationLimit:    req.RegistrationLimit,
		RegistrationFee:      req.RegistrationFee,
		Tags:                 req.Tags,
		MerchItems:           req.MerchItems,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ev)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := eventParam(c)
	if !ok {
		return
	}
	ev, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ev.Status == models.PhaseDraft && ev.OrganizerID != middleware.MustUserID(c) {
		response.Error(c, apperr.ErrEventNotFound)
		return
	}
	response.OK(c, ev)
}

// Patch handles PATCH /organizer/events/:id.
func (h *Handler) Patch(c *gin.Context) {
	id, ok := eventParam(c)
	if !ok {
		return
	}
	organizerID, ok := caller(c)
	if !ok {
		return
	}
	var patch models.EventPatch
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.svc.Patch(c.Request.Context(), id, organizerID, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Publish handles POST /organizer/events/:id/publish.
func (h *Handler) Publish(c *gin.Context) {
	id, ok := eventParam(c)
	if !ok {
		return
	}
	organizerID, ok := caller(c)
	if !ok {
		return
	}
	ev, err := h.svc.Publish(c.Request.Context(), id, organizerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// SetMerchItems handles PUT /organizer/events/:id/merch-items.
func (h *Handler) SetMerchItems(c *gin.Context) {
	id, ok := eventParam(c)
	if !ok {
		return
	}
	organizerID, ok := caller(c)
	if !ok {
		return
	}
	var req MerchItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.svc.SetMerchItems(c.Request.Context(), id, organizerID, req.Items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}
