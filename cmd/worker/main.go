// Package main runs the notification delivery worker. It consumes the configured transport,
// sends mail and records each outcome in notification_logs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/felicity-events/backend/config"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/worker"
	"github.com/felicity-events/backend/pkg/database"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Database.Driver != config.StorePostgres {
		logger.Fatal("worker requires STORE_DRIVER=postgres; use NOTIFY_INPROCESS_WORKER with the memory store")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	backend, err := notify.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("notification transport", zap.Error(err))
	}
	defer backend.Close()

	processor := worker.NewNotificationProcessor(notify.NewSender(cfg.Notify, logger), notify.NewRepository(pool), logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		switch {
		case backend.Queue != nil:
			processor.Run(workerCtx, backend.Queue)
		case backend.Rabbit != nil:
			if err := processor.RunBroker(workerCtx, backend.Rabbit); err != nil {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		default:
			logger.Warn("no notification transport configured, worker idle")
			<-workerCtx.Done()
		}
	}()
	logger.Info("worker started", zap.String("transport", cfg.Notify.Transport))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-done:
	}

	cancel()
	<-done
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
