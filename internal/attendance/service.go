// Package attendance checks tickets in at the venue. Each ticket attends at most once per
// event, whichever workflow issued it.
package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/lifecycle"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/tickets"
)

// Store persists attendance. RecordAttendance returns apperr.ErrAlreadyAttended when the
// ticket already has a record for the event.
type Store interface {
	ResolveTicket(ctx context.Context, eventID uuid.UUID, ticketID string) (models.TicketLineage, error)
	RecordAttendance(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error)
	AttendanceSummary(ctx context.Context, eventID uuid.UUID) (models.AttendanceSummary, error)
}

// Owners checks event ownership.
type Owners interface {
	RequireOwner(ctx context.Context, eventID, organizerID uuid.UUID) (models.Event, error)
}

// Service records check-ins.
type Service struct {
	store  Store
	owners Owners
	clock  lifecycle.Clock
	logger *zap.Logger
}

// NewService creates an attendance service.
func NewService(store Store, owners Owners, clock lifecycle.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = lifecycle.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, owners: owners, clock: clock, logger: logger}
}

// ScanInput is a QR scan. Payload is the raw scanned text; TicketID is accepted when the
// scanner only read the id.
type ScanInput struct {
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	Payload     string
	TicketID    string
}

// ManualInput is a check-in entered by hand.
type ManualInput struct {
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	TicketID    string
	Note        string
}

// Scan records a scanned check-in.
func (s *Service) Scan(ctx context.Context, in ScanInput) (models.AttendanceRecord, error) {
	if _, err := s.owners.RequireOwner(ctx, in.EventID, in.OrganizerID); err != nil {
		return models.AttendanceRecord{}, err
	}
	ticketID := strings.TrimSpace(in.TicketID)
	if strings.TrimSpace(in.Payload) != "" {
		p, err := tickets.ParsePayload(in.Payload)
		if err != nil {
			return models.AttendanceRecord{}, err
		}
		if !p.ForEvent(in.EventID) {
			return models.AttendanceRecord{}, apperr.ErrTicketNotFound.WithMessage("ticket belongs to another event")
		}
		ticketID = p.TicketID
	}
	if ticketID == "" {
		return models.AttendanceRecord{}, apperr.Validation(apperr.CodeInvalidInput, "payload or ticket id is required")
	}
	return s.record(ctx, in.EventID, in.OrganizerID, ticketID, models.MethodScan, "")
}

// Manual records a hand-entered check-in, flagged as an override.
func (s *Service) Manual(ctx context.Context, in ManualInput) (models.AttendanceRecord, error) {
	if _, err := s.owners.RequireOwner(ctx, in.EventID, in.OrganizerID); err != nil {
		return models.AttendanceRecord{}, err
	}
	ticketID := strings.TrimSpace(in.TicketID)
	if ticketID == "" {
		return models.AttendanceRecord{}, apperr.Validation(apperr.CodeInvalidInput, "ticket id is required")
	}
	return s.record(ctx, in.EventID, in.OrganizerID, ticketID, models.MethodManual, strings.TrimSpace(in.Note))
}

func (s *Service) record(ctx context.Context, eventID, organizerID uuid.UUID, ticketID string, method models.AttendanceMethod, note string) (models.AttendanceRecord, error) {
	lineage, err := s.store.ResolveTicket(ctx, eventID, ticketID)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	if !lineage.Active {
		return models.AttendanceRecord{}, apperr.ErrRegistrationInactive
	}
	rec, err := s.store.RecordAttendance(ctx, models.AttendanceRecord{
		ID:            uuid.New(),
		EventID:       eventID,
		TicketID:      lineage.Ticket.TicketID,
		ParticipantID: lineage.Ticket.ParticipantID,
		Origin:        lineage.Ticket.Origin,
		Method:        method,
		Override:      method == models.MethodManual,
		Note:          note,
		ScannedBy:     organizerID,
		ScannedAt:     s.clock().Truncate(time.Microsecond),
	})
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	s.logger.Info("attendance recorded",
		zap.String("event_id", eventID.String()),
		zap.String("ticket_id", rec.TicketID),
		zap.String("method", string(method)))
	return rec, nil
}

// Summary reports how many issued tickets have checked in.
func (s *Service) Summary(ctx context.Context, eventID, organizerID uuid.UUID) (models.AttendanceSummary, error) {
	if _, err := s.owners.RequireOwner(ctx, eventID, organizerID); err != nil {
		return models.AttendanceSummary{}, err
	}
	return s.store.AttendanceSummary(ctx, eventID)
}
