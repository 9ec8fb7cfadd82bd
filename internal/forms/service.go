package forms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/lifecycle"
	"github.com/felicity-events/backend/internal/models"
)

// Store persists form schemas. SaveFormSchema must refuse with apperr.ErrFormLocked when the
// event has any registration, deciding atomically with concurrent registrations.
type Store interface {
	GetFormSchema(ctx context.Context, eventID uuid.UUID) (models.FormSchema, error)
	CountRegistrations(ctx context.Context, eventID uuid.UUID) (int, error)
	SaveFormSchema(ctx context.Context, eventID uuid.UUID, fields []models.FormField, at time.Time) (models.FormSchema, error)
}

// Events resolves events and their owners.
type Events interface {
	GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error)
	RequireOwner(ctx context.Context, eventID, organizerID uuid.UUID) (models.Event, error)
}

// Service reads and writes registration forms.
type Service struct {
	store  Store
	events Events
	clock  lifecycle.Clock
	logger *zap.Logger
}

// NewService creates a form service.
func NewService(store Store, events Events, clock lifecycle.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = lifecycle.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, events: events, clock: clock, logger: logger}
}

// Get returns the schema of an event and whether it is locked. An event without a schema
// has no fields and version 0.
func (s *Service) Get(ctx context.Context, eventID uuid.UUID) (models.FormView, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return models.FormView{}, err
	}
	schema, err := s.store.GetFormSchema(ctx, eventID)
	if err != nil {
		return models.FormView{}, err
	}
	n, err := s.store.CountRegistrations(ctx, eventID)
	if err != nil {
		return models.FormView{}, err
	}
	fields := schema.Fields
	if fields == nil {
		fields = []models.FormField{}
	}
	return models.FormView{Fields: fields, Version: schema.Version, Locked: n > 0}, nil
}

// Save replaces the schema while the event has no registrations.
func (s *Service) Save(ctx context.Context, eventID, organizerID uuid.UUID, fields []models.FormField) (models.FormView, error) {
	if _, err := s.events.RequireOwner(ctx, eventID, organizerID); err != nil {
		return models.FormView{}, err
	}
	if fields == nil {
		fields = []models.FormField{}
	}
	if err := ValidateSchema(fields); err != nil {
		return models.FormView{}, err
	}
	schema, err := s.store.SaveFormSchema(ctx, eventID, fields, s.clock())
	if err != nil {
		return models.FormView{}, err
	}
	s.logger.Info("form schema saved", zap.String("event_id", eventID.String()), zap.Int("version", schema.Version))
	return models.FormView{Fields: schema.Fields, Version: schema.Version}, nil
}
