// Package registrations allocates registration slots. The capacity and uniqueness decisions
// are made by the store inside one transaction; the service only orders the preconditions
// and reports which one failed.
package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/forms"
	"github.com/felicity-events/backend/internal/lifecycle"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/tickets"
)

// Store persists registrations.
//
// CreateRegistration must, atomically: insert reg unless one exists for (event, participant)
// (apperr.ErrAlreadyRegistered), claim one unit of capacity.RegistrationKey against the
// event's current registration limit (apperr.ErrLimitReached), verify the form schema is
// still at formVersion (apperr.ErrFormChanged), then insert the ticket and the answers.
type Store interface {
	CreateRegistration(ctx context.Context, reg models.Registration, ticket models.Ticket, answers map[string]string, formVersion int) (models.Registration, error)
	CancelRegistration(ctx context.Context, eventID, participantID uuid.UUID, at time.Time) (models.Registration, error)
	GetRegistration(ctx context.Context, eventID, participantID uuid.UUID) (models.Registration, error)
}

// Events resolves events.
type Events interface {
	GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error)
}

// Profiles resolves participant profiles.
type Profiles interface {
	GetParticipant(ctx context.Context, id uuid.UUID) (models.ParticipantProfile, error)
}

// Forms reads form schemas.
type Forms interface {
	GetFormSchema(ctx context.Context, eventID uuid.UUID) (models.FormSchema, error)
}

// Notifier publishes notifications after commit.
type Notifier interface {
	Dispatch(ctx context.Context, m notify.Message) bool
}

// Service implements registration and cancellation.
type Service struct {
	store    Store
	events   Events
	profiles Profiles
	forms    Forms
	ledger   capacity.Ledger
	notifier Notifier
	clock    lifecycle.Clock
	logger   *zap.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Store    Store
	Events   Events
	Profiles Profiles
	Forms    Forms
	Ledger   capacity.Ledger
	Notifier Notifier
	Clock    lifecycle.Clock
	Logger   *zap.Logger
}

// NewService creates a registration service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = lifecycle.SystemClock
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		store: d.Store, events: d.Events, profiles: d.Profiles, forms: d.Forms,
		ledger: d.Ledger, notifier: d.Notifier, clock: d.Clock, logger: d.Logger,
	}
}

// RegisterInput is one participant's registration attempt.
type RegisterInput struct {
	EventID       uuid.UUID
	ParticipantID uuid.UUID
	Answers       map[string]string
}

// RegisterResult is returned on success. NotificationQueued is advisory.
type RegisterResult struct {
	RegistrationID     uuid.UUID `json:"registration_id"`
	TicketID           string    `json:"ticket_id"`
	Payload            string    `json:"payload"`
	NotificationQueued bool      `json:"notification_queued"`
}

// Register checks the preconditions in order and then makes the atomic claim.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	e, err := s.events.GetEvent(ctx, in.EventID)
	if err != nil {
		return RegisterResult{}, err
	}
	now := s.clock()
	if p := lifecycle.Resolve(e, now); p != models.PhasePublished {
		return RegisterResult{}, apperr.Validation(apperr.CodeEventNotOpen, "event is not open for registration (status %s)", p)
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return RegisterResult{}, apperr.Validation(apperr.CodeDeadlinePassed, "registration deadline has passed")
	}
	if e.RegistrationLimit != nil {
		taken, err := s.ledger.TotalUnits(ctx, capacity.RegistrationKey(e.ID))
		if err != nil {
			return RegisterResult{}, err
		}
		if taken >= *e.RegistrationLimit {
			return RegisterResult{}, s.fullEventError(ctx, e.ID, in.ParticipantID)
		}
	}

	profile, err := s.profiles.GetParticipant(ctx, in.ParticipantID)
	if err != nil {
		return RegisterResult{}, err
	}
	if !e.Eligibility.Allows(profile.ParticipantType) {
		return RegisterResult{}, apperr.Forbidden(apperr.CodeNotEligible, "event is open to %s participants only", e.Eligibility)
	}

	schema, err := s.forms.GetFormSchema(ctx, e.ID)
	if err != nil {
		return RegisterResult{}, err
	}
	var answers map[string]string
	if len(schema.Fields) > 0 {
		if answers, err = forms.ValidateAnswers(schema.Fields, in.Answers); err != nil {
			return RegisterResult{}, err
		}
	}

	reg := models.Registration{
		ID:            uuid.New(),
		EventID:       e.ID,
		ParticipantID: in.ParticipantID,
		Status:        models.RegistrationRegistered,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var ticket models.Ticket
	var created models.Registration
	err = tickets.WithFreshIDs(func() error {
		ticket = tickets.New(models.OriginRegistration, e.ID, in.ParticipantID, now)
		ticket.RegistrationID = &reg.ID
		reg.TicketID = ticket.TicketID
		var err error
		created, err = s.store.CreateRegistration(ctx, reg, ticket, answers, schema.Version)
		return err
	})
	if err != nil {
		return RegisterResult{}, err
	}
	s.logger.Info("registration created",
		zap.String("event_id", e.ID.String()),
		zap.String("participant_id", in.ParticipantID.String()),
		zap.String("ticket_id", ticket.TicketID))

	queued := s.notifier.Dispatch(ctx, notify.RegistrationConfirmed(profile, e, ticket.TicketID))
	return RegisterResult{
		RegistrationID:     created.ID,
		TicketID:           ticket.TicketID,
		Payload:            ticket.Payload,
		NotificationQueued: queued,
	}, nil
}

// fullEventError reports a retry by someone who already holds a slot as a duplicate, not as
// a full event.
func (s *Service) fullEventError(ctx context.Context, eventID, participantID uuid.UUID) error {
	_, err := s.store.GetRegistration(ctx, eventID, participantID)
	switch {
	case err == nil:
		return apperr.ErrAlreadyRegistered
	case errors.Is(err, apperr.ErrRegistrationNotFound):
		return apperr.ErrLimitReached
	}
	return err
}

// Cancel withdraws an active registration while the event is still Published and gives
// the slot back.
func (s *Service) Cancel(ctx context.Context, eventID, participantID uuid.UUID) (models.Registration, error) {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return models.Registration{}, err
	}
	now := s.clock()
	if p := lifecycle.Resolve(e, now); p != models.PhasePublished {
		return models.Registration{}, apperr.Validation(apperr.CodeEventNotOpen, "registrations can only be cancelled before the event starts (status %s)", p)
	}
	reg, err := s.store.CancelRegistration(ctx, eventID, participantID, now)
	if err != nil {
		return models.Registration{}, err
	}
	s.logger.Info("registration cancelled",
		zap.String("event_id", eventID.String()), zap.String("participant_id", participantID.String()))
	return reg, nil
}

// Get returns the caller's registration for an event.
func (s *Service) Get(ctx context.Context, eventID, participantID uuid.UUID) (models.Registration, error) {
	return s.store.GetRegistration(ctx, eventID, participantID)
}
