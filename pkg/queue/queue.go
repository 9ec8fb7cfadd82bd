package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueNotifications is the Redis list key for notification jobs.
	QueueNotifications = "felicity:notifications"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "felicity:notifications:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// PollTimeout bounds one blocking pop so the worker loop notices cancellation.
	PollTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeNotification JobType = "notification"
)

// NotificationPayload is the payload for notification jobs.
type NotificationPayload struct {
	Kind      string     `json:"kind"`
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	BodyHTML  string     `json:"body_html"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewNotificationJob wraps payload in a fresh job envelope.
func NewNotificationJob(payload NotificationPayload) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      JobTypeNotification,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Notification decodes the job payload.
func (j *Job) Notification() (NotificationPayload, error) {
	var p NotificationPayload
	if j.Type != JobTypeNotification {
		return p, fmt.Errorf("unknown job type: %s", j.Type)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueNotification enqueues a notification job and returns its id.
func (q *Queue) EnqueueNotification(ctx context.Context, payload NotificationPayload) (string, error) {
	job, err := NewNotificationJob(payload)
	if err != nil {
		return "", err
	}
	if err := q.push(ctx, QueueNotifications, job); err != nil {
		return "", err
	}
	q.logger.Debug("notification queued", zap.String("job_id", job.ID), zap.String("kind", payload.Kind))
	return job.ID, nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Dequeue blocks for up to PollTimeout. It returns a nil job when nothing arrived.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, QueueNotifications).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry puts job back with its attempt incremented, or onto the dead-letter list once it
// reaches MaxRetries. It reports whether the job was dead-lettered.
func (q *Queue) Retry(ctx context.Context, job *Job) (bool, error) {
	job.Attempt++
	if job.Attempt < MaxRetries {
		if err := q.push(ctx, QueueNotifications, job); err != nil {
			return false, err
		}
		q.logger.Info("notification requeued", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return false, nil
	}
	if err := q.push(ctx, QueueDLQ, job); err != nil {
		q.logger.Error("dead-letter push failed", zap.String("job_id", job.ID), zap.Error(err))
		return false, err
	}
	q.logger.Warn("notification dead-lettered", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return true, nil
}
