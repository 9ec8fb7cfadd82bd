package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository handles form_schemas persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a form repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetFormSchema returns the schema, or an empty version 0 schema when none was saved.
func (r *Repository) GetFormSchema(ctx context.Context, eventID uuid.UUID) (models.FormSchema, error) {
	return GetSchema(ctx, r.pool, eventID)
}

// GetSchema reads a schema on db, which may be a transaction.
func GetSchema(ctx context.Context, db database.Tx, eventID uuid.UUID) (models.FormSchema, error) {
	const q = `SELECT event_id, fields, version, created_at, updated_at FROM form_schemas WHERE event_id = $1`
	var s models.FormSchema
	var raw []byte
	err := db.QueryRow(ctx, q, eventID).Scan(&s.EventID, &raw, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if database.IsNoRows(err) {
		return models.FormSchema{EventID: eventID}, nil
	}
	if err != nil {
		return models.FormSchema{}, fmt.Errorf("get form schema: %w", err)
	}
	if err := json.Unmarshal(raw, &s.Fields); err != nil {
		return models.FormSchema{}, fmt.Errorf("decode form fields: %w", err)
	}
	return s, nil
}

// CountRegistrations counts every registration of the event, cancelled ones included.
func (r *Repository) CountRegistrations(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// SaveFormSchema upserts the schema under an exclusive lock on the event row. Registration
// transactions hold the same row in share mode, so the count below cannot miss one that is
// committing concurrently.
func (r *Repository) SaveFormSchema(ctx context.Context, eventID uuid.UUID, fields []models.FormField, at time.Time) (models.FormSchema, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return models.FormSchema{}, fmt.Errorf("encode form fields: %w", err)
	}
	var out models.FormSchema
	err = database.InTx(ctx, r.pool, func(tx database.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
		if database.IsNoRows(err) {
			return apperr.ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n); err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if n > 0 {
			return apperr.ErrFormLocked
		}
		const q = `INSERT INTO form_schemas (event_id, fields, version, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $3)
			ON CONFLICT (event_id) DO UPDATE SET fields = EXCLUDED.fields, version = form_schemas.version + 1,
				updated_at = EXCLUDED.updated_at
			RETURNING version, created_at, updated_at`
		out = models.FormSchema{EventID: eventID, Fields: fields}
		return tx.QueryRow(ctx, q, eventID, raw, at).Scan(&out.Version, &out.CreatedAt, &out.UpdatedAt)
	})
	if err != nil {
		return models.FormSchema{}, err
	}
	return out, nil
}
