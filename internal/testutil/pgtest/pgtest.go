//go:build integration

// Package pgtest starts a disposable PostgreSQL container for integration tests and applies
// the embedded migrations to it.
package pgtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"

	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/profiles"
	"github.com/felicity-events/backend/pkg/database"
)

// New returns a pool connected to a fresh, migrated database. The container is purged
// when the test ends.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dp, err := dockertest.NewPool("")
	require.NoError(t, err, "connect to docker")
	dp.MaxWait = 90 * time.Second

	res, err := dp.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=felicity",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=felicity",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "start postgres")
	_ = res.Expire(300)
	t.Cleanup(func() { _ = dp.Purge(res) })

	dsn := fmt.Sprintf("postgres://felicity:secret@%s/felicity?sslmode=disable", res.GetHostPort("5432/tcp"))
	ctx := context.Background()

	var pool *pgxpool.Pool
	err = dp.Retry(func() error {
		p, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	require.NoError(t, err, "wait for postgres")
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool, nil))
	return pool
}

// User inserts an account with role and returns its profile.
func User(t *testing.T, pool *pgxpool.Pool, role models.Role, pt models.ParticipantType) models.ParticipantProfile {
	t.Helper()
	id := uuid.New()
	p := models.ParticipantProfile{
		UserID:          id,
		Email:           id.String()[:8] + "@students.test",
		FirstName:       "Test",
		LastName:        string(role),
		ParticipantType: pt,
	}
	require.NoError(t, profiles.NewRepository(pool).Upsert(context.Background(), p, role))
	return p
}
