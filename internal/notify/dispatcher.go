// Package notify hands notifications to a transport after a claim has committed and
// delivers them from the worker side.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/pkg/queue"
)

// Message is one outbound notification.
type Message struct {
	Kind      string
	EventID   *uuid.UUID
	Recipient string
	Subject   string
	BodyHTML  string
}

func (m Message) payload() queue.NotificationPayload {
	return queue.NotificationPayload{
		Kind:      m.Kind,
		EventID:   m.EventID,
		Recipient: m.Recipient,
		Subject:   m.Subject,
		BodyHTML:  m.BodyHTML,
	}
}

// Transport publishes a notification for asynchronous delivery.
type Transport interface {
	Publish(ctx context.Context, p queue.NotificationPayload) error
}

// Dispatcher publishes messages with a bounded wait. Callers treat the result as advisory:
// a failure never undoes the claim that triggered the message.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger
}

// DefaultEnqueueTimeout bounds how long Dispatch holds the caller after commit.
const DefaultEnqueueTimeout = 200 * time.Millisecond

// NewDispatcher creates a dispatcher. A nil transport disables notifications.
func NewDispatcher(t Transport, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultEnqueueTimeout
	}
	return &Dispatcher{transport: t, timeout: timeout, logger: logger}
}

// Dispatch publishes m and reports whether it was queued. The publish runs on a context
// detached from ctx's cancellation so a client disconnect after commit does not drop it.
func (d *Dispatcher) Dispatch(ctx context.Context, m Message) bool {
	if d == nil || d.transport == nil || m.Recipient == "" {
		return false
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.transport.Publish(pctx, m.payload()); err != nil {
		d.logger.Warn("notification enqueue failed",
			zap.String("kind", m.Kind), zap.String("recipient", m.Recipient), zap.Error(err))
		return false
	}
	return true
}

// QueueTransport publishes onto the Redis job queue.
type QueueTransport struct {
	q *queue.Queue
}

// NewQueueTransport wraps a Redis queue.
func NewQueueTransport(q *queue.Queue) *QueueTransport {
	return &QueueTransport{q: q}
}

func (t *QueueTransport) Publish(ctx context.Context, p queue.NotificationPayload) error {
	_, err := t.q.EnqueueNotification(ctx, p)
	return err
}
