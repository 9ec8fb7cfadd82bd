package registrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/tickets"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const registrationColumns = `id, event_id, participant_id, ticket_id, status, created_at, updated_at`

// CreateRegistration runs the whole claim in one transaction. The event row is held in
// share mode so a form schema write, which takes it exclusively, cannot interleave.
func (r *Repository) CreateRegistration(ctx context.Context, reg models.Registration, ticket models.Ticket, answers map[string]string, formVersion int) (models.Registration, error) {
	var out models.Registration
	err := database.InTx(ctx, r.pool, func(tx database.Tx) error {
		var limit *int
		err := tx.QueryRow(ctx, `SELECT registration_limit FROM events WHERE id = $1 FOR SHARE`, reg.EventID).Scan(&limit)
		if database.IsNoRows(err) {
			return apperr.ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}

		const insert = `INSERT INTO registrations (id, event_id, participant_id, ticket_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id, participant_id) DO NOTHING
			RETURNING ` + registrationColumns
		err = tx.QueryRow(ctx, insert, reg.ID, reg.EventID, reg.ParticipantID, reg.TicketID, reg.Status, reg.CreatedAt, reg.UpdatedAt).
			Scan(&out.ID, &out.EventID, &out.ParticipantID, &out.TicketID, &out.Status, &out.CreatedAt, &out.UpdatedAt)
		if database.IsNoRows(err) {
			return apperr.ErrAlreadyRegistered
		}
		if database.IsUniqueViolation(err, "registrations_ticket_key") {
			return tickets.ErrIDTaken
		}
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}

		res, err := capacity.NewPostgres(tx).TryClaim(ctx, capacity.Request{
			Key:      capacity.RegistrationKey(reg.EventID),
			Claimant: reg.ParticipantID.String(),
			Units:    1,
			Ceiling:  limit,
		})
		if err != nil {
			return err
		}
		if !res.Accepted {
			return apperr.ErrLimitReached
		}

		var version int
		if err := tx.QueryRow(ctx, `SELECT COALESCE((SELECT version FROM form_schemas WHERE event_id = $1), 0)`, reg.EventID).Scan(&version); err != nil {
			return fmt.Errorf("read form version: %w", err)
		}
		if version != formVersion {
			return apperr.ErrFormChanged
		}

		if err := tickets.Insert(ctx, tx, ticket); err != nil {
			return err
		}
		if answers != nil {
			raw, err := json.Marshal(answers)
			if err != nil {
				return fmt.Errorf("encode answers: %w", err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO form_responses (event_id, participant_id, answers, created_at) VALUES ($1, $2, $3, $4)`,
				reg.EventID, reg.ParticipantID, raw, reg.CreatedAt); err != nil {
				return fmt.Errorf("insert form response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.Registration{}, err
	}
	return out, nil
}

// CancelRegistration flips an active registration to cancelled and releases its slot.
func (r *Repository) CancelRegistration(ctx context.Context, eventID, participantID uuid.UUID, at time.Time) (models.Registration, error) {
	var out models.Registration
	err := database.InTx(ctx, r.pool, func(tx database.Tx) error {
		const q = `UPDATE registrations SET status = 'cancelled', updated_at = $3
			WHERE event_id = $1 AND participant_id = $2 AND status = 'registered'
			RETURNING ` + registrationColumns
		err := tx.QueryRow(ctx, q, eventID, participantID, at).
			Scan(&out.ID, &out.EventID, &out.ParticipantID, &out.TicketID, &out.Status, &out.CreatedAt, &out.UpdatedAt)
		if database.IsNoRows(err) {
			if _, err := getRegistration(ctx, tx, eventID, participantID); err != nil {
				return err
			}
			return apperr.ErrRegistrationInactive
		}
		if err != nil {
			return fmt.Errorf("cancel registration: %w", err)
		}
		return capacity.NewPostgres(tx).Release(ctx, capacity.RegistrationKey(eventID), participantID.String(), 1)
	})
	if err != nil {
		return models.Registration{}, err
	}
	return out, nil
}

// GetRegistration returns the registration of a participant for an event.
func (r *Repository) GetRegistration(ctx context.Context, eventID, participantID uuid.UUID) (models.Registration, error) {
	return getRegistration(ctx, r.pool, eventID, participantID)
}

func getRegistration(ctx context.Context, db database.Tx, eventID, participantID uuid.UUID) (models.Registration, error) {
	var reg models.Registration
	err := db.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 AND participant_id = $2`, eventID, participantID).
		Scan(&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.TicketID, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt)
	if database.IsNoRows(err) {
		return models.Registration{}, apperr.ErrRegistrationNotFound
	}
	if err != nil {
		return models.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}
