package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/tickets"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository handles the attendance table. Ticket lookups go through the tickets repository.
type Repository struct {
	*tickets.Repository
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Repository: tickets.NewRepository(pool), pool: pool}
}

// RecordAttendance inserts rec unless the ticket already attended.
func (r *Repository) RecordAttendance(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	const q = `INSERT INTO attendance (id, event_id, ticket_id, participant_id, origin, method, override, note, scanned_by, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id, ticket_id) DO NOTHING
		RETURNING id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, rec.ID, rec.EventID, rec.TicketID, rec.ParticipantID, rec.Origin, rec.Method,
		rec.Override, rec.Note, rec.ScannedBy, rec.ScannedAt).Scan(&id)
	if database.IsNoRows(err) {
		return models.AttendanceRecord{}, apperr.ErrAlreadyAttended
	}
	if err != nil {
		return models.AttendanceRecord{}, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, nil
}

// AttendanceSummary counts active tickets and how many of them checked in.
func (r *Repository) AttendanceSummary(ctx context.Context, eventID uuid.UUID) (models.AttendanceSummary, error) {
	const q = `SELECT COUNT(*), COUNT(a.id)
		FROM tickets t
		LEFT JOIN registrations r ON r.id = t.registration_id
		LEFT JOIN merch_orders o ON o.id = t.order_id
		LEFT JOIN attendance a ON a.event_id = t.event_id AND a.ticket_id = t.ticket_id
		WHERE t.event_id = $1
		  AND (r.status = 'registered' OR o.status = 'APPROVED')`
	s := models.AttendanceSummary{EventID: eventID}
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&s.TotalTickets, &s.Attended); err != nil {
		return models.AttendanceSummary{}, fmt.Errorf("attendance summary: %w", err)
	}
	s.NotAttended = s.TotalTickets - s.Attended
	return s, nil
}
