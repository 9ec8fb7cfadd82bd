package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, organizer_id, name, description, type, eligibility, start_date, end_date,
	registration_deadline, registration_limit, registration_fee::float8, tags, published_at, status_override,
	created_at, updated_at`

func scanEvent(row pgx.Row) (models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Type, &e.Eligibility, &e.StartDate, &e.EndDate,
		&e.RegistrationDeadline, &e.RegistrationLimit, &e.RegistrationFee, &e.Tags, &e.PublishedAt, &e.StatusOverride,
		&e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// CreateEvent inserts the event and its merch items in one transaction.
func (r *Repository) CreateEvent(ctx context.Context, e models.Event) (models.Event, error) {
	err := database.InTx(ctx, r.pool, func(tx database.Tx) error {
		const q = `INSERT INTO events (id, organizer_id, name, description, type, eligibility, start_date, end_date,
			registration_deadline, registration_limit, registration_fee, tags, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
		if _, err := tx.Exec(ctx, q, e.ID, e.OrganizerID, e.Name, e.Description, e.Type, e.Eligibility, e.StartDate, e.EndDate,
			e.RegistrationDeadline, e.RegistrationLimit, e.RegistrationFee, e.Tags, e.CreatedAt, e.UpdatedAt); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return insertItems(ctx, tx, e.ID, e.MerchItems)
	})
	if err != nil {
		return models.Event{}, err
	}
	return r.GetEvent(ctx, e.ID)
}

// GetEvent returns an event with its merch items.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error) {
	return getEvent(ctx, r.pool, id)
}

func getEvent(ctx context.Context, db database.Tx, id uuid.UUID) (models.Event, error) {
	e, err := scanEvent(db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return models.Event{}, apperr.ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("get event: %w", err)
	}
	if e.MerchItems, err = ListItems(ctx, db, id); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

// ListItems returns the merch items of an event in catalogue order.
func ListItems(ctx context.Context, db database.Tx, eventID uuid.UUID) ([]models.MerchItem, error) {
	rows, err := db.Query(ctx, `SELECT name, price::float8, stock_qty, per_user_limit, variants
		FROM merch_items WHERE event_id = $1 ORDER BY position, name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list merch items: %w", err)
	}
	defer rows.Close()
	var items []models.MerchItem
	for rows.Next() {
		var it models.MerchItem
		if err := rows.Scan(&it.Name, &it.Price, &it.StockQty, &it.PerUserLimit, &it.Variants); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func insertItems(ctx context.Context, tx database.Tx, eventID uuid.UUID, items []models.MerchItem) error {
	for i, it := range items {
		variants := it.Variants
		if variants == nil {
			variants = []string{}
		}
		const q = `INSERT INTO merch_items (event_id, name, position, price, stock_qty, per_user_limit, variants)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.Exec(ctx, q, eventID, it.Name, i, it.Price, it.StockQty, it.PerUserLimit, variants); err != nil {
			return fmt.Errorf("insert merch item %q: %w", it.Name, err)
		}
	}
	return nil
}

// UpdateEvent writes the editable columns if the row is unchanged since prevUpdatedAt.
func (r *Repository) UpdateEvent(ctx context.Context, e models.Event, prevUpdatedAt time.Time) (models.Event, error) {
	const q = `UPDATE events SET name = $3, description = $4, type = $5, eligibility = $6, start_date = $7, end_date = $8,
		registration_deadline = $9, registration_limit = $10, registration_fee = $11, tags = $12, status_override = $13,
		updated_at = $14
		WHERE id = $1 AND updated_at = $2`
	tag, err := r.pool.Exec(ctx, q, e.ID, prevUpdatedAt, e.Name, e.Description, e.Type, e.Eligibility, e.StartDate, e.EndDate,
		e.RegistrationDeadline, e.RegistrationLimit, e.RegistrationFee, e.Tags, e.StatusOverride, e.UpdatedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, e.ID); err != nil {
			return models.Event{}, err
		}
		return models.Event{}, apperr.ErrEventModified
	}
	return r.GetEvent(ctx, e.ID)
}

// PublishEvent sets published_at once and clears any override.
func (r *Repository) PublishEvent(ctx context.Context, id uuid.UUID, at time.Time) (models.Event, error) {
	const q = `UPDATE events SET published_at = $2, status_override = NULL, updated_at = $2
		WHERE id = $1 AND published_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return models.Event{}, fmt.Errorf("publish event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, id); err != nil {
			return models.Event{}, err
		}
		return models.Event{}, apperr.ErrEventNotDraft
	}
	return r.GetEvent(ctx, id)
}

// SetMerchItems replaces the items while holding the event row, so a concurrent publish
// either sees the new catalogue or makes this write fail.
func (r *Repository) SetMerchItems(ctx context.Context, id uuid.UUID, items []models.MerchItem, at time.Time) (models.Event, error) {
	err := database.InTx(ctx, r.pool, func(tx database.Tx) error {
		var published *time.Time
		err := tx.QueryRow(ctx, `SELECT published_at FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&published)
		if database.IsNoRows(err) {
			return apperr.ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		if published != nil {
			return apperr.ErrEventNotDraft
		}
		if _, err := tx.Exec(ctx, `DELETE FROM merch_items WHERE event_id = $1`, id); err != nil {
			return fmt.Errorf("clear merch items: %w", err)
		}
		if err := insertItems(ctx, tx, id, items); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE events SET updated_at = $2 WHERE id = $1`, id, at)
		return err
	})
	if err != nil {
		return models.Event{}, err
	}
	return r.GetEvent(ctx, id)
}
