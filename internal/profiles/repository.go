// Package profiles resolves participant profiles from the users table. Accounts are created
// by the authentication service; this service only reads them.
package profiles

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository handles user profile reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a profile repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetParticipant returns the profile of a participant account. Accounts of other roles and
// participants without a type are reported as not found.
func (r *Repository) GetParticipant(ctx context.Context, id uuid.UUID) (models.ParticipantProfile, error) {
	const q = `SELECT id, email, first_name, last_name, participant_type
		FROM users WHERE id = $1 AND role = 'participant' AND participant_type IS NOT NULL`
	var p models.ParticipantProfile
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.UserID, &p.Email, &p.FirstName, &p.LastName, &p.ParticipantType)
	if database.IsNoRows(err) {
		return models.ParticipantProfile{}, apperr.ErrProfileNotFound
	}
	if err != nil {
		return models.ParticipantProfile{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// Upsert writes a user row keyed by id. It is used to seed accounts mirrored from the
// authentication service.
func (r *Repository) Upsert(ctx context.Context, p models.ParticipantProfile, role models.Role) error {
	const q = `INSERT INTO users (id, email, first_name, last_name, role, participant_type)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name, role = EXCLUDED.role, participant_type = EXCLUDED.participant_type`
	if _, err := r.pool.Exec(ctx, q, p.UserID, p.Email, p.FirstName, p.LastName, string(role), string(p.ParticipantType)); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
