package merch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/tickets"
	"github.com/felicity-events/backend/pkg/database"
)

// Repository handles merch order persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a merch repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, order_id, event_id, participant_id, items, total_amount::float8, status,
	payment_proof_url, ticket_id, comment, created_at, updated_at`

func scanOrder(row pgx.Row) (models.MerchOrder, error) {
	var o models.MerchOrder
	var items []byte
	err := row.Scan(&o.ID, &o.OrderID, &o.EventID, &o.ParticipantID, &items, &o.TotalAmount, &o.Status,
		&o.PaymentProofURL, &o.TicketID, &o.Comment, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decode order items: %w", err)
	}
	return o, nil
}

// CreateOrder claims every quota and inserts the order in one transaction.
func (r *Repository) CreateOrder(ctx context.Context, o models.MerchOrder, claims []capacity.Request) (models.MerchOrder, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return models.MerchOrder{}, fmt.Errorf("encode order items: %w", err)
	}
	var out models.MerchOrder
	err = database.InTx(ctx, r.pool, func(tx database.Tx) error {
		ledger := capacity.NewPostgres(tx)
		for _, c := range claims {
			res, err := ledger.TryClaim(ctx, c)
			if err != nil {
				return err
			}
			if !res.Accepted {
				return apperr.ErrPerUserLimit
			}
		}
		const q = `INSERT INTO merch_orders (id, order_id, event_id, participant_id, items, total_amount, status,
				payment_proof_url, comment, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $9)
			RETURNING ` + orderColumns
		out, err = scanOrder(tx.QueryRow(ctx, q, o.ID, o.OrderID, o.EventID, o.ParticipantID, items, o.TotalAmount,
			o.Status, o.PaymentProofURL, o.CreatedAt))
		if database.IsUniqueViolation(err, "merch_orders_order_id_key") {
			return tickets.ErrIDTaken
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.MerchOrder{}, err
	}
	return out, nil
}

// GetOrder returns an order by id.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (models.MerchOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM merch_orders WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return models.MerchOrder{}, apperr.ErrOrderNotFound
	}
	if err != nil {
		return models.MerchOrder{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ApproveOrder flips the status, consumes stock line by line and inserts the ticket. Any
// line that cannot be served rolls the whole approval back.
func (r *Repository) ApproveOrder(ctx context.Context, id uuid.UUID, ticket models.Ticket, at time.Time) (models.MerchOrder, error) {
	var out models.MerchOrder
	err := database.InTx(ctx, r.pool, func(tx database.Tx) error {
		const q = `UPDATE merch_orders SET status = 'APPROVED', ticket_id = $2, updated_at = $3
			WHERE id = $1 AND status = 'PENDING'
			RETURNING ` + orderColumns
		var err error
		out, err = scanOrder(tx.QueryRow(ctx, q, id, ticket.TicketID, at))
		if database.IsNoRows(err) {
			return r.missingOrNotPending(ctx, tx, id)
		}
		if database.IsUniqueViolation(err, "merch_orders_ticket_key") {
			return tickets.ErrIDTaken
		}
		if err != nil {
			return fmt.Errorf("approve order: %w", err)
		}

		quantities := out.Quantities()
		for _, name := range sortedNames(quantities) {
			const dec = `UPDATE merch_items
				SET stock_qty = CASE WHEN stock_qty IS NULL THEN NULL ELSE stock_qty - $3 END
				WHERE event_id = $1 AND name = $2 AND (stock_qty IS NULL OR stock_qty >= $3)`
			tag, err := tx.Exec(ctx, dec, out.EventID, name, quantities[name])
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return apperr.ErrStockDepleted.WithMessage("%s is out of stock", name)
			}
		}
		return tickets.Insert(ctx, tx, ticket)
	})
	if err != nil {
		return models.MerchOrder{}, err
	}
	return out, nil
}

// RejectOrder flips the status and releases the participant's quota for every line.
func (r *Repository) RejectOrder(ctx context.Context, id uuid.UUID, comment string, at time.Time) (models.MerchOrder, error) {
	var out models.MerchOrder
	err := database.InTx(ctx, r.pool, func(tx database.Tx) error {
		const q = `UPDATE merch_orders SET status = 'REJECTED', comment = $2, updated_at = $3
			WHERE id = $1 AND status = 'PENDING'
			RETURNING ` + orderColumns
		var err error
		out, err = scanOrder(tx.QueryRow(ctx, q, id, comment, at))
		if database.IsNoRows(err) {
			return r.missingOrNotPending(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("reject order: %w", err)
		}
		ledger := capacity.NewPostgres(tx)
		quantities := out.Quantities()
		for _, name := range sortedNames(quantities) {
			if err := ledger.Release(ctx, capacity.MerchKey(out.EventID, name), out.ParticipantID.String(), quantities[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.MerchOrder{}, err
	}
	return out, nil
}

func (r *Repository) missingOrNotPending(ctx context.Context, tx database.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM merch_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return apperr.ErrOrderNotFound
	}
	return apperr.ErrOrderNotPending
}

// ListOrders returns the orders of an event, newest first. An empty status lists all.
func (r *Repository) ListOrders(ctx context.Context, eventID uuid.UUID, status models.OrderStatus) ([]models.MerchOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM merch_orders
		WHERE event_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC`, eventID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []models.MerchOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
