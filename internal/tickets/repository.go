package tickets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository reads and writes the tickets table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ticket repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes t on db, usually the transaction that made the claim it proves.
func Insert(ctx context.Context, db database.Tx, t models.Ticket) error {
	const q = `INSERT INTO tickets (ticket_id, event_id, participant_id, origin, registration_id, order_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := db.Exec(ctx, q, t.TicketID, t.EventID, t.ParticipantID, t.Origin, t.RegistrationID, t.OrderID, t.Payload, t.CreatedAt)
	if database.IsUniqueViolation(err, "tickets_pkey") {
		return ErrIDTaken
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// ResolveTicket finds ticketID within eventID and reports whether its claim still stands.
func (r *Repository) ResolveTicket(ctx context.Context, eventID uuid.UUID, ticketID string) (models.TicketLineage, error) {
	const q = `SELECT t.ticket_id, t.event_id, t.participant_id, t.origin, t.registration_id, t.order_id, t.payload, t.created_at,
			CASE t.origin
				WHEN 'REGISTRATION' THEN COALESCE(r.status = 'registered', FALSE)
				ELSE COALESCE(o.status = 'APPROVED', FALSE)
			END
		FROM tickets t
		LEFT JOIN registrations r ON r.id = t.registration_id
		LEFT JOIN merch_orders o ON o.id = t.order_id
		WHERE t.event_id = $1 AND t.ticket_id = $2`
	var l models.TicketLineage
	t := &l.Ticket
	err := r.pool.QueryRow(ctx, q, eventID, ticketID).Scan(
		&t.TicketID, &t.EventID, &t.ParticipantID, &t.Origin, &t.RegistrationID, &t.OrderID, &t.Payload, &t.CreatedAt, &l.Active)
	if database.IsNoRows(err) {
		return models.TicketLineage{}, apperr.ErrTicketNotFound
	}
	if err != nil {
		return models.TicketLineage{}, fmt.Errorf("resolve ticket: %w", err)
	}
	return l, nil
}
