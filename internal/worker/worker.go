// Package worker delivers queued notifications and records the outcome of each.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/pkg/queue"
)

// JobQueue is the Redis list queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// Consumer is a broker that pushes jobs and handles redelivery itself.
type Consumer interface {
	Consume(ctx context.Context, handle func(context.Context, *queue.Job) error) error
}

// LogWriter records delivery outcomes.
type LogWriter interface {
	InsertNotificationLog(ctx context.Context, l models.NotificationLog) error
}

// NotificationProcessor sends notification jobs.
type NotificationProcessor struct {
	sender  notify.Sender
	logs    LogWriter
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewNotificationProcessor creates a notification processor.
func NewNotificationProcessor(sender notify.Sender, logs LogWriter, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{
		sender:  sender,
		logs:    logs,
		logger:  logger,
		backoff: queue.RetryBackoff,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle sends one job. A successful send is logged as sent; the failure of the final
// attempt is logged as failed. Earlier failures are only returned for redelivery.
func (p *NotificationProcessor) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := job.Notification()
	if err != nil {
		// A malformed job will never succeed; record it and drop it.
		p.logger.Error("dropping undecodable job", zap.String("job_id", job.ID), zap.Error(err))
		p.record(ctx, queue.NotificationPayload{Kind: string(job.Type)}, job.Attempt+1, err)
		return nil
	}
	if err := p.sender.Send(ctx, payload.Recipient, payload.Subject, payload.BodyHTML); err != nil {
		p.logger.Warn("notification send failed",
			zap.String("job_id", job.ID), zap.String("kind", payload.Kind), zap.Int("attempt", job.Attempt), zap.Error(err))
		if job.Attempt+1 >= queue.MaxRetries {
			p.record(ctx, payload, job.Attempt+1, err)
		}
		return err
	}
	p.record(ctx, payload, job.Attempt+1, nil)
	p.logger.Info("notification sent", zap.String("job_id", job.ID), zap.String("kind", payload.Kind))
	return nil
}

func (p *NotificationProcessor) record(ctx context.Context, payload queue.NotificationPayload, attempts int, sendErr error) {
	now := p.now()
	l := models.NotificationLog{
		ID:        uuid.New(),
		EventID:   payload.EventID,
		Kind:      payload.Kind,
		Recipient: payload.Recipient,
		Subject:   payload.Subject,
		Status:    models.NotificationStatusSent,
		Attempts:  attempts,
		CreatedAt: now,
	}
	if sendErr != nil {
		l.Status = models.NotificationStatusFailed
		l.ErrorMessage = sendErr.Error()
	} else {
		l.SentAt = &now
	}
	if err := p.logs.InsertNotificationLog(ctx, l); err != nil {
		p.logger.Error("notification log insert failed", zap.Error(err))
	}
}

// Run starts the Redis worker loop: dequeue, handle, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context, q JobQueue) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Handle(ctx, job); err != nil {
			if _, reErr := q.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

// RunBroker consumes from a push-based broker until ctx is done.
func (p *NotificationProcessor) RunBroker(ctx context.Context, c Consumer) error {
	return c.Consume(ctx, p.Handle)
}

func (p *NotificationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
