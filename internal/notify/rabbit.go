package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/pkg/queue"
)

const headerAttempt = "x-attempt"

// RabbitTransport publishes notification jobs to a durable RabbitMQ queue bound to a direct
// exchange, and consumes them on the worker side.
type RabbitTransport struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	dlq      string
	logger   *zap.Logger
}

// NewRabbitTransport dials url and declares the exchange, the queue and its dead-letter queue.
func NewRabbitTransport(url, exchange, queueName string, logger *zap.Logger) (*RabbitTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	t := &RabbitTransport{conn: conn, channel: ch, exchange: exchange, queue: queueName, dlq: queueName + ".dlq", logger: logger}

	if err := t.declare(); err != nil {
		t.Close()
		return nil, err
	}
	logger.Info("RabbitMQ initialized", zap.String("exchange", exchange), zap.String("queue", queueName))
	return t, nil
}

func (t *RabbitTransport) declare() error {
	if err := t.channel.ExchangeDeclare(t.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, name := range []string{t.queue, t.dlq} {
		if _, err := t.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		if err := t.channel.QueueBind(name, name, t.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the channel and connection.
func (t *RabbitTransport) Close() {
	if t.channel != nil {
		_ = t.channel.Close()
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

func (t *RabbitTransport) Publish(ctx context.Context, p queue.NotificationPayload) error {
	job, err := queue.NewNotificationJob(p)
	if err != nil {
		return err
	}
	return t.publish(ctx, t.queue, job)
}

func (t *RabbitTransport) publish(ctx context.Context, routingKey string, job *queue.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = t.channel.PublishWithContext(ctx, t.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{headerAttempt: int32(job.Attempt)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Consume delivers jobs to handle until ctx is done. A failed job is republished with its
// attempt incremented, or to the dead-letter queue once it reaches queue.MaxRetries.
func (t *RabbitTransport) Consume(ctx context.Context, handle func(context.Context, *queue.Job) error) error {
	msgs, err := t.channel.Consume(t.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}
	t.logger.Info("consuming notifications", zap.String("queue", t.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			t.deliver(ctx, d, handle)
		}
	}
}

func (t *RabbitTransport) deliver(ctx context.Context, d amqp.Delivery, handle func(context.Context, *queue.Job) error) {
	var job queue.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		t.logger.Warn("invalid job payload", zap.ByteString("raw", d.Body), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, &job); err == nil {
		_ = d.Ack(false)
		return
	}

	job.Attempt++
	target := t.queue
	if job.Attempt >= queue.MaxRetries {
		target = t.dlq
		t.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	}
	if err := t.publish(ctx, target, &job); err != nil {
		t.logger.Error("republish failed", zap.String("job_id", job.ID), zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
