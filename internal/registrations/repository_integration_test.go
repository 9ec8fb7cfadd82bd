//go:build integration

package registrations_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/events"
	"github.com/felicity-events/backend/internal/forms"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/profiles"
	"github.com/felicity-events/backend/internal/registrations"
	"github.com/felicity-events/backend/internal/testutil/pgtest"
)

func newPostgresService(t *testing.T, pool *pgxpool.Pool) *registrations.Service {
	t.Helper()
	return registrations.NewService(registrations.Deps{
		Store:    registrations.NewRepository(pool),
		Events:   events.NewRepository(pool),
		Profiles: profiles.NewRepository(pool),
		Forms:    forms.NewRepository(pool),
		Ledger:   capacity.NewPostgres(pool),
		Notifier: &recorder{},
	})
}

func publishedEvent(t *testing.T, pool *pgxpool.Pool, limit int) models.Event {
	t.Helper()
	ctx := context.Background()
	org := pgtest.User(t, pool, models.RoleOrganizer, "")
	start := time.Now().Add(7 * 24 * time.Hour).UTC()
	end := start.Add(24 * time.Hour)
	deadline := start.Add(-24 * time.Hour)
	repo := events.NewRepository(pool)
	e, err := repo.CreateEvent(ctx, models.Event{
		ID:                   uuid.New(),
		OrganizerID:          org.UserID,
		Name:                 "Hackathon",
		Type:                 models.EventTypeNormal,
		Eligibility:          models.EligibilityAll,
		StartDate:            &start,
		EndDate:              &end,
		RegistrationDeadline: &deadline,
		RegistrationLimit:    &limit,
		Tags:                 []string{},
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	})
	require.NoError(t, err)
	e, err = repo.PublishEvent(ctx, e.ID, time.Now().UTC())
	require.NoError(t, err)
	return e
}

func TestPostgresConcurrentRegistrationsRespectLimit(t *testing.T) {
	pool := pgtest.New(t)
	svc := newPostgresService(t, pool)
	e := publishedEvent(t, pool, 10)

	const n = 25
	participants := make([]models.ParticipantProfile, n)
	for i := range participants {
		participants[i] = pgtest.User(t, pool, models.RoleParticipant, models.ParticipantIIIT)
	}

	var ok, full int32
	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Register(context.Background(), registrations.RegisterInput{EventID: e.ID, ParticipantID: id})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case apperr.CodeOf(err) == apperr.CodeLimitReached:
				atomic.AddInt32(&full, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p.UserID)
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok)
	assert.EqualValues(t, 15, full)

	var tickets int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM tickets WHERE event_id = $1`, e.ID).Scan(&tickets))
	assert.Equal(t, 10, tickets)
}

func TestPostgresDuplicateRegistration(t *testing.T) {
	pool := pgtest.New(t)
	svc := newPostgresService(t, pool)
	e := publishedEvent(t, pool, 5)
	p := pgtest.User(t, pool, models.RoleParticipant, models.ParticipantNonIIIT)
	ctx := context.Background()

	_, err := svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: p.UserID})
	require.NoError(t, err)
	_, err = svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: p.UserID})
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)

	_, err = svc.Cancel(ctx, e.ID, p.UserID)
	require.NoError(t, err)
	used, err := capacity.NewPostgres(pool).TotalUnits(ctx, capacity.RegistrationKey(e.ID))
	require.NoError(t, err)
	assert.Zero(t, used)
}
