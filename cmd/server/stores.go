package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/felicity-events/backend/config"
	"github.com/felicity-events/backend/internal/attendance"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/events"
	"github.com/felicity-events/backend/internal/forms"
	"github.com/felicity-events/backend/internal/merch"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/profiles"
	"github.com/felicity-events/backend/internal/registrations"
	"github.com/felicity-events/backend/internal/store/memory"
	"github.com/felicity-events/backend/internal/worker"
	"github.com/felicity-events/backend/pkg/database"
)

type notificationLogs interface {
	notify.LogStore
	worker.LogWriter
}

// stores groups the persistence backends behind the service interfaces.
type stores struct {
	events        events.Store
	forms         forms.Store
	profiles      registrations.Profiles
	registrations registrations.Store
	merch         merch.Store
	attendance    attendance.Store
	logs          notificationLogs
	ledger        capacity.Ledger
	close         func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Database.Driver == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		st := memory.New()
		return &stores{
			events:        st,
			forms:         st,
			profiles:      st,
			registrations: st,
			merch:         st,
			attendance:    st,
			logs:          st,
			ledger:        st.Ledger(),
			close:         func() {},
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		events:        events.NewRepository(pool),
		forms:         forms.NewRepository(pool),
		profiles:      profiles.NewRepository(pool),
		registrations: registrations.NewRepository(pool),
		merch:         merch.NewRepository(pool),
		attendance:    attendance.NewRepository(pool),
		logs:          notify.NewRepository(pool),
		ledger:        capacity.NewPostgres(pool),
		close:         pool.Close,
	}, nil
}
