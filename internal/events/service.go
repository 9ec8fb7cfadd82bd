// Package events administers events: creation, phase-gated edits, publishing and the merch
// catalogue of MERCH events.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/lifecycle"
	"github.com/felicity-events/backend/internal/models"
)

// Store persists events. UpdateEvent and SetMerchItems are conditional writes: UpdateEvent
// only applies if the row still carries prevUpdatedAt, SetMerchItems only while unpublished.
type Store interface {
	CreateEvent(ctx context.Context, e models.Event) (models.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error)
	UpdateEvent(ctx context.Context, e models.Event, prevUpdatedAt time.Time) (models.Event, error)
	PublishEvent(ctx context.Context, id uuid.UUID, at time.Time) (models.Event, error)
	SetMerchItems(ctx context.Context, id uuid.UUID, items []models.MerchItem, at time.Time) (models.Event, error)
}

// Service implements event administration.
type Service struct {
	store  Store
	clock  lifecycle.Clock
	logger *zap.Logger
}

// NewService creates an event service. A nil clock uses the wall clock.
func NewService(store Store, clock lifecycle.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = lifecycle.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

// CreateInput is a new draft event.
type CreateInput struct {
	OrganizerID          uuid.UUID
	Name                 string
	Description          string
	Type                 models.EventType
	Eligibility          models.Eligibility
	StartDate            *time.Time
	EndDate              *time.Time
	RegistrationDeadline *time.Time
	RegistrationLimit    *int
	RegistrationFee      float64
	Tags                 []string
	MerchItems           []models.MerchItem
}

// Create stores a new Draft event owned by in.OrganizerID.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.EventView, error) {
	if in.Eligibility == "" {
		in.Eligibility = models.EligibilityAll
	}
	if in.Type == "" {
		in.Type = models.EventTypeNormal
	}
	if !in.Type.Valid() {
		return models.EventView{}, apperr.Validation(apperr.CodeInvalidInput, "invalid event type %q", in.Type)
	}
	if !in.Eligibility.Valid() {
		return models.EventView{}, apperr.Validation(apperr.CodeInvalidInput, "invalid eligibility %q", in.Eligibility)
	}
	if strings.TrimSpace(in.Name) == "" {
		return models.EventView{}, apperr.Validation(apperr.CodeInvalidInput, "name is required")
	}
	if in.RegistrationLimit != nil && *in.RegistrationLimit <= 0 {
		return models.EventView{}, apperr.Validation(apperr.CodeInvalidInput, "registration_limit must be positive")
	}
	if in.RegistrationFee < 0 {
		return models.EventView{}, apperr.Validation(apperr.CodeInvalidInput, "registration_fee cannot be negative")
	}
	if len(in.MerchItems) > 0 {
		if in.Type != models.EventTypeMerch {
			return models.EventView{}, apperr.Validation(apperr.CodeNotMerchEvent, "only MERCH events carry merch items")
		}
		if err := ValidateMerchItems(in.MerchItems); err != nil {
			return models.EventView{}, err
		}
	}

	now := s.clock()
	e := models.Event{
		ID:                   uuid.New(),
		OrganizerID:          in.OrganizerID,
		Name:                 strings.TrimSpace(in.Name),
		Description:          in.Description,
		Type:                 in.Type,
		Eligibility:          in.Eligibility,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		RegistrationDeadline: in.RegistrationDeadline,
		RegistrationLimit:    in.RegistrationLimit,
		RegistrationFee:      in.RegistrationFee,
		Tags:                 normalizeTags(in.Tags),
		MerchItems:           in.MerchItems,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	created, err := s.store.CreateEvent(ctx, e)
	if err != nil {
		return models.EventView{}, err
	}
	s.logger.Info("event created", zap.String("event_id", created.ID.String()), zap.String("type", string(created.Type)))
	return lifecycle.View(created, now), nil
}

// Get returns the event with its phase resolved now.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.EventView, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return models.EventView{}, err
	}
	return lifecycle.View(e, s.clock()), nil
}

// GetEvent returns the stored event without resolving its phase.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// RequireOwner returns the event if organizerID owns it.
func (s *Service) RequireOwner(ctx context.Context, eventID, organizerID uuid.UUID) (models.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return models.Event{}, err
	}
	if e.OrganizerID != organizerID {
		return models.Event{}, apperr.ErrNotEventOwner
	}
	return e, nil
}

// Patch applies a partial update if every present field is editable in the current phase.
func (s *Service) Patch(ctx context.Context, eventID, organizerID uuid.UUID, patch models.EventPatch) (models.EventView, error) {
	e, err := s.RequireOwner(ctx, eventID, organizerID)
	if err != nil {
		return models.EventView{}, err
	}
	now := s.clock()
	if err := lifecycle.CheckPatch(lifecycle.Resolve(e, now), patch); err != nil {
		return models.EventView{}, err
	}

	next := patch.Apply(e)
	if next.Type != models.EventTypeMerch && len(next.MerchItems) > 0 {
		return models.EventView{}, apperr.Validation(apperr.CodeInvalidInput, "remove merch items before changing the event type")
	}
	next.Tags = normalizeTags(next.Tags)
	next.UpdatedAt = now
	updated, err := s.store.UpdateEvent(ctx, next, e.UpdatedAt)
	if err != nil {
		return models.EventView{}, err
	}
	s.logger.Info("event updated", zap.String("event_id", eventID.String()), zap.Strings("fields", patch.Fields()))
	return lifecycle.View(updated, now), nil
}

// Publish moves a Draft event to Published after checking its schedule.
func (s *Service) Publish(ctx context.Context, eventID, organizerID uuid.UUID) (models.EventView, error) {
	e, err := s.RequireOwner(ctx, eventID, organizerID)
	if err != nil {
		return models.EventView{}, err
	}
	now := s.clock()
	if err := lifecycle.CheckPublish(e, now); err != nil {
		return models.EventView{}, err
	}
	if e.Type == models.EventTypeMerch && len(e.MerchItems) == 0 {
		return models.EventView{}, apperr.Validation(apperr.CodePublishInvalid, "merch events need at least one item")
	}
	published, err := s.store.PublishEvent(ctx, eventID, now)
	if err != nil {
		return models.EventView{}, err
	}
	s.logger.Info("event published", zap.String("event_id", eventID.String()))
	return lifecycle.View(published, now), nil
}

// SetMerchItems replaces the merch catalogue of a Draft MERCH event.
func (s *Service) SetMerchItems(ctx context.Context, eventID, organizerID uuid.UUID, items []models.MerchItem) (models.EventView, error) {
	e, err := s.RequireOwner(ctx, eventID, organizerID)
	if err != nil {
		return models.EventView{}, err
	}
	if e.Type != models.EventTypeMerch {
		return models.EventView{}, apperr.Validation(apperr.CodeNotMerchEvent, "event is not a merch event")
	}
	now := s.clock()
	if p := lifecycle.Resolve(e, now); p != models.PhaseDraft {
		return models.EventView{}, apperr.ErrEventNotDraft.WithMessage("merch items can only change while the event is a draft (status %s)", p)
	}
	if err := ValidateMerchItems(items); err != nil {
		return models.EventView{}, err
	}
	updated, err := s.store.SetMerchItems(ctx, eventID, items, now)
	if err != nil {
		return models.EventView{}, err
	}
	return lifecycle.View(updated, now), nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
