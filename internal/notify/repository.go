package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-events/backend/internal/models"
)

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertNotificationLog records a delivery outcome.
func (r *Repository) InsertNotificationLog(ctx context.Context, l models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (id, event_id, kind, recipient, subject, status, attempts, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, q, l.ID, l.EventID, l.Kind, l.Recipient, l.Subject, l.Status, l.Attempts, l.SentAt, l.ErrorMessage, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// ListNotificationLogs returns logs for an event, newest first.
func (r *Repository) ListNotificationLogs(ctx context.Context, eventID uuid.UUID) ([]models.NotificationLog, error) {
	const q = `SELECT id, event_id, kind, recipient, subject, status, attempts, sent_at, error_message, created_at
		FROM notification_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	defer rows.Close()
	list := []models.NotificationLog{}
	for rows.Next() {
		var l models.NotificationLog
		if err := rows.Scan(&l.ID, &l.EventID, &l.Kind, &l.Recipient, &l.Subject, &l.Status, &l.Attempts, &l.SentAt, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
