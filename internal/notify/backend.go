package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/felicity-events/backend/config"
	"github.com/felicity-events/backend/pkg/queue"
	"github.com/felicity-events/backend/pkg/redis"
)

// Backend is the configured notification transport. Exactly one of Queue and Rabbit is set
// unless notifications are disabled.
type Backend struct {
	Transport Transport
	Queue     *queue.Queue
	Rabbit    *RabbitTransport

	closers []func()
}

// Open connects the transport selected by cfg.Notify.Transport.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.Notify.Transport {
	case config.TransportNone:
		logger.Info("notifications disabled")
	case config.TransportRabbitMQ:
		rt, err := NewRabbitTransport(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			return nil, err
		}
		b.Rabbit, b.Transport = rt, rt
		b.closers = append(b.closers, rt.Close)
	case config.TransportRedis:
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		b.Queue = queue.NewQueue(rdb.Client, logger)
		b.Transport = NewQueueTransport(b.Queue)
		b.closers = append(b.closers, func() { _ = rdb.Close() })
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Notify.Transport)
	}
	return b, nil
}

// Close releases the transport connections.
func (b *Backend) Close() {
	for _, c := range b.closers {
		c()
	}
}

// NewSender returns an SMTP sender when a host is configured, otherwise a log sender.
func NewSender(cfg config.NotifyConfig, logger *zap.Logger) Sender {
	if cfg.SMTPHost == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.FromAddress,
	})
}
