package registrations_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/registrations"
	"github.com/felicity-events/backend/internal/store/memory"
	"github.com/felicity-events/backend/internal/tickets"
)

var _ registrations.Store = (*memory.Store)(nil)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Dispatch(_ context.Context, m notify.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return true
}

type fixture struct {
	store    *memory.Store
	svc      *registrations.Service
	notifier *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	rec := &recorder{}
	return &fixture{
		store:    st,
		notifier: rec,
		svc: registrations.NewService(registrations.Deps{
			Store:    st,
			Events:   st,
			Profiles: st,
			Forms:    st,
			Ledger:   st.Ledger(),
			Notifier: rec,
			Clock:    func() time.Time { return now },
		}),
	}
}

func intp(v int) *int { return &v }

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

// event stores a published event starting in a week.
func (f *fixture) event(t *testing.T, mutate func(*models.Event)) models.Event {
	t.Helper()
	e := models.Event{
		ID:                   uuid.New(),
		OrganizerID:          uuid.New(),
		Name:                 "Hackathon",
		Type:                 models.EventTypeNormal,
		Eligibility:          models.EligibilityAll,
		StartDate:            at(7 * 24 * time.Hour),
		EndDate:              at(8 * 24 * time.Hour),
		RegistrationDeadline: at(6 * 24 * time.Hour),
		PublishedAt:          at(-time.Hour),
		CreatedAt:            now.Add(-2 * time.Hour),
		UpdatedAt:            now.Add(-time.Hour),
	}
	if mutate != nil {
		mutate(&e)
	}
	_, err := f.store.CreateEvent(context.Background(), e)
	require.NoError(t, err)
	return e
}

func (f *fixture) participant(pt models.ParticipantType) uuid.UUID {
	id := uuid.New()
	f.store.PutParticipant(models.ParticipantProfile{
		UserID: id, Email: id.String()[:8] + "@example.com", FirstName: "Test", ParticipantType: pt,
	})
	return id
}

func TestRegisterIssuesTicket(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)
	p := f.participant(models.ParticipantIIIT)

	res, err := f.svc.Register(context.Background(), registrations.RegisterInput{EventID: e.ID, ParticipantID: p})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.TicketID, "FEL-"))
	assert.Contains(t, res.Payload, res.TicketID)
	assert.True(t, res.NotificationQueued)

	reg, err := f.svc.Get(context.Background(), e.ID, p)
	require.NoError(t, err)
	assert.Equal(t, res.RegistrationID, reg.ID)
	assert.Equal(t, models.RegistrationRegistered, reg.Status)

	require.Len(t, f.notifier.msgs, 1)
	assert.Equal(t, models.NotificationRegistrationConfirmed, f.notifier.msgs[0].Kind)
	assert.Contains(t, f.notifier.msgs[0].BodyHTML, res.TicketID)
}

func TestRegisterTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)
	p := f.participant(models.ParticipantIIIT)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: p})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: p})
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)

	sum, err := f.store.AttendanceSummary(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalTickets)
	reg, err := f.store.GetRegistration(ctx, e.ID, p)
	require.NoError(t, err)
	assert.Equal(t, first.TicketID, reg.TicketID)
}

func TestConcurrentRegistrationsRespectLimit(t *testing.T) {
	const limit, extra = 10, 15
	f := newFixture(t)
	e := f.event(t, func(e *models.Event) { e.RegistrationLimit = intp(limit) })

	var accepted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < limit+extra; i++ {
		p := f.participant(models.ParticipantNonIIIT)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), registrations.RegisterInput{EventID: e.ID, ParticipantID: p})
			switch {
			case err == nil:
				accepted.Add(1)
			case apperr.CodeOf(err) == apperr.CodeLimitReached:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, limit, accepted.Load())
	assert.EqualValues(t, extra, rejected.Load())
	n, err := f.store.CountRegistrations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, n)
}

func TestLastSlotRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		e := f.event(t, func(e *models.Event) { e.RegistrationLimit = intp(1) })
		a, b := f.participant(models.ParticipantIIIT), f.participant(models.ParticipantIIIT)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for j, p := range []uuid.UUID{a, b} {
			wg.Add(1)
			go func(j int, p uuid.UUID) {
				defer wg.Done()
				_, errs[j] = f.svc.Register(context.Background(), registrations.RegisterInput{EventID: e.ID, ParticipantID: p})
			}(j, p)
		}
		wg.Wait()

		assert.True(t, (errs[0] == nil) != (errs[1] == nil), "exactly one registration wins: %v", errs)
		sum, err := f.store.AttendanceSummary(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.TotalTickets)
	}
}

func TestRegisterPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Event)
		ptype   models.ParticipantType
		profile bool
		code    string
	}{
		{name: "draft", mutate: func(e *models.Event) { e.PublishedAt = nil }, ptype: models.ParticipantIIIT, profile: true, code: apperr.CodeEventNotOpen},
		{name: "ongoing", mutate: func(e *models.Event) { e.StartDate = at(-time.Minute) }, ptype: models.ParticipantIIIT, profile: true, code: apperr.CodeEventNotOpen},
		{name: "closed override", mutate: func(e *models.Event) { p := models.PhaseClosed; e.StatusOverride = &p }, ptype: models.ParticipantIIIT, profile: true, code: apperr.CodeEventNotOpen},
		{name: "deadline passed", mutate: func(e *models.Event) { e.RegistrationDeadline = at(-time.Second) }, ptype: models.ParticipantIIIT, profile: true, code: apperr.CodeDeadlinePassed},
		{name: "not eligible", mutate: func(e *models.Event) { e.Eligibility = models.EligibilityIIIT }, ptype: models.ParticipantNonIIIT, profile: true, code: apperr.CodeNotEligible},
		{name: "no profile", ptype: models.ParticipantIIIT, code: apperr.CodeProfileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			e := f.event(t, tt.mutate)
			p := uuid.New()
			if tt.profile {
				p = f.participant(tt.ptype)
			}
			_, err := f.svc.Register(context.Background(), registrations.RegisterInput{EventID: e.ID, ParticipantID: p})
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			n, _ := f.store.CountRegistrations(context.Background(), e.ID)
			assert.Zero(t, n)
		})
	}

	t.Run("missing event", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(context.Background(), registrations.RegisterInput{EventID: uuid.New(), ParticipantID: uuid.New()})
		assert.ErrorIs(t, err, apperr.ErrEventNotFound)
	})
}

func TestRegisterValidatesForm(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)
	ctx := context.Background()
	_, err := f.store.SaveFormSchema(ctx, e.ID, []models.FormField{
		{Label: "T-shirt size", Type: models.FieldSelect, Required: true, Options: []string{"S", "M", "L"}},
		{Label: "Team size", Type: models.FieldNumber},
	}, now)
	require.NoError(t, err)

	tests := []struct {
		name    string
		answers map[string]string
		code    string
	}{
		{name: "required missing", answers: map[string]string{"Team size": "3"}, code: apperr.CodeFieldRequired},
		{name: "bad option", answers: map[string]string{"T-shirt size": "XXL"}, code: apperr.CodeInvalidOption},
		{name: "bad number", answers: map[string]string{"T-shirt size": "M", "Team size": "three"}, code: apperr.CodeInvalidNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.participant(models.ParticipantIIIT)
			_, err := f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: p, Answers: tt.answers})
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	p := f.participant(models.ParticipantIIIT)
	_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: p,
		Answers: map[string]string{"T-shirt size": "M", "Team size": "4"}})
	require.NoError(t, err)
	answers, ok := f.store.FormResponse(e.ID, p)
	require.True(t, ok)
	assert.Equal(t, "M", answers["T-shirt size"])

	_, err = f.store.SaveFormSchema(ctx, e.ID, nil, now)
	assert.ErrorIs(t, err, apperr.ErrFormLocked)
}

func TestStaleFormVersionRollsBack(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(e *models.Event) { e.RegistrationLimit = intp(5) })
	ctx := context.Background()
	_, err := f.store.SaveFormSchema(ctx, e.ID, []models.FormField{{Label: "Name", Type: models.FieldText}}, now)
	require.NoError(t, err)

	p := f.participant(models.ParticipantIIIT)
	_, err = f.store.CreateRegistration(ctx, models.Registration{ID: uuid.New(), EventID: e.ID, ParticipantID: p, TicketID: "FEL-X"},
		models.Ticket{TicketID: "FEL-X", EventID: e.ID, ParticipantID: p, Origin: models.OriginRegistration}, nil, 0)
	assert.ErrorIs(t, err, apperr.ErrFormChanged)

	taken, err := f.store.Ledger().TotalUnits(ctx, "registration:"+e.ID.String())
	require.NoError(t, err)
	assert.Zero(t, taken, "slot is given back")
	n, _ := f.store.CountRegistrations(ctx, e.ID)
	assert.Zero(t, n)
}

func TestCancelReleasesSlot(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(e *models.Event) { e.RegistrationLimit = intp(1) })
	a, b := f.participant(models.ParticipantIIIT), f.participant(models.ParticipantIIIT)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: a})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: b})
	require.ErrorIs(t, err, apperr.ErrLimitReached)

	reg, err := f.svc.Cancel(ctx, e.ID, a)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCancelled, reg.Status)

	_, err = f.svc.Cancel(ctx, e.ID, a)
	assert.ErrorIs(t, err, apperr.ErrRegistrationInactive)

	_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: b})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: a})
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)
}

func TestRetryOnFullEventIsDuplicate(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(e *models.Event) { e.RegistrationLimit = intp(1) })
	a, b := f.participant(models.ParticipantIIIT), f.participant(models.ParticipantNonIIIT)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: a})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: a})
		require.ErrorIs(t, err, apperr.ErrAlreadyRegistered)
		assert.NotErrorIs(t, err, apperr.ErrLimitReached)
	}
	_, err = f.svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: b})
	assert.ErrorIs(t, err, apperr.ErrLimitReached)

	n, err := f.store.CountRegistrations(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	reg, err := f.svc.Get(ctx, e.ID, a)
	require.NoError(t, err)
	assert.Equal(t, first.TicketID, reg.TicketID)
}

// takenTickets rejects the first failures ticket ids as already issued.
type takenTickets struct {
	*memory.Store
	failures int
	seen     []string
}

func (s *takenTickets) CreateRegistration(ctx context.Context, reg models.Registration, tk models.Ticket, answers map[string]string, version int) (models.Registration, error) {
	s.seen = append(s.seen, tk.TicketID)
	if len(s.seen) <= s.failures {
		return models.Registration{}, tickets.ErrIDTaken
	}
	return s.Store.CreateRegistration(ctx, reg, tk, answers, version)
}

func TestRegisterRetriesTakenTicketID(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)
	st := &takenTickets{Store: f.store, failures: 2}
	svc := registrations.NewService(registrations.Deps{
		Store: st, Events: f.store, Profiles: f.store, Forms: f.store, Ledger: f.store.Ledger(),
		Notifier: f.notifier, Clock: func() time.Time { return now },
	})
	ctx := context.Background()

	res, err := svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: f.participant(models.ParticipantIIIT)})
	require.NoError(t, err)
	require.Len(t, st.seen, 3)
	assert.Equal(t, st.seen[2], res.TicketID)
	assert.Contains(t, res.Payload, res.TicketID)

	st.failures = 10
	st.seen = nil
	_, err = svc.Register(ctx, registrations.RegisterInput{EventID: e.ID, ParticipantID: f.participant(models.ParticipantIIIT)})
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Len(t, st.seen, tickets.IssueAttempts)
}

func TestRegisterHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	e := f.event(t, nil)
	p := f.participant(models.ParticipantIIIT)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, p); c.Next() })
	h := registrations.NewHandler(f.svc, nil)
	r.POST("/events/:id/register", h.Register)

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events/"+e.ID.String()+"/register", strings.NewReader(`{"form_answers":{}}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := do()
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"ticket_id":"FEL-`)

	w = do()
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperr.CodeAlreadyRegistered)
}
