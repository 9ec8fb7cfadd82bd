package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/attendance"
	"github.com/felicity-events/backend/internal/events"
	"github.com/felicity-events/backend/internal/merch"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/store/memory"
	"github.com/felicity-events/backend/internal/tickets"
)

var _ attendance.Store = (*memory.Store)(nil)

var now = time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	svc       *attendance.Service
	organizer uuid.UUID
	event     models.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	clock := func() time.Time { return now }
	f := &fixture{store: st, organizer: uuid.New()}
	f.event = f.addEvent(t)
	f.svc = attendance.NewService(st, events.NewService(st, clock, nil), clock, nil)
	return f
}

func (f *fixture) addEvent(t *testing.T) models.Event {
	t.Helper()
	published := now.Add(-48 * time.Hour)
	e := models.Event{ID: uuid.New(), OrganizerID: f.organizer, Name: "Workshop", Type: models.EventTypeNormal,
		Eligibility: models.EligibilityAll, PublishedAt: &published}
	_, err := f.store.CreateEvent(context.Background(), e)
	require.NoError(t, err)
	return e
}

// register issues a registration ticket for a new participant of e.
func (f *fixture) register(t *testing.T, e models.Event) models.Ticket {
	t.Helper()
	p := uuid.New()
	reg := models.Registration{ID: uuid.New(), EventID: e.ID, ParticipantID: p, Status: models.RegistrationRegistered}
	tk := tickets.New(models.OriginRegistration, e.ID, p, now)
	tk.RegistrationID = &reg.ID
	reg.TicketID = tk.TicketID
	_, err := f.store.CreateRegistration(context.Background(), reg, tk, nil, 0)
	require.NoError(t, err)
	return tk
}

func TestScanOnce(t *testing.T) {
	f := newFixture(t)
	tk := f.register(t, f.event)
	ctx := context.Background()

	rec, err := f.svc.Scan(ctx, attendance.ScanInput{EventID: f.event.ID, OrganizerID: f.organizer, Payload: tk.Payload})
	require.NoError(t, err)
	assert.Equal(t, tk.TicketID, rec.TicketID)
	assert.Equal(t, models.MethodScan, rec.Method)
	assert.False(t, rec.Override)
	assert.Equal(t, f.organizer, rec.ScannedBy)

	_, err = f.svc.Scan(ctx, attendance.ScanInput{EventID: f.event.ID, OrganizerID: f.organizer, Payload: tk.Payload})
	assert.ErrorIs(t, err, apperr.ErrAlreadyAttended)
	_, err = f.svc.Manual(ctx, attendance.ManualInput{EventID: f.event.ID, OrganizerID: f.organizer, TicketID: tk.TicketID})
	assert.ErrorIs(t, err, apperr.ErrAlreadyAttended)

	sum, err := f.svc.Summary(ctx, f.event.ID, f.organizer)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceSummary{EventID: f.event.ID, TotalTickets: 1, Attended: 1}, sum)
}

func intp(v int) *int { return &v }

type discardNotifier struct{}

func (discardNotifier) Dispatch(context.Context, notify.Message) bool { return true }

func TestScanMerchPickupTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := func() time.Time { return now }
	published := now.Add(-48 * time.Hour)
	shop := models.Event{ID: uuid.New(), OrganizerID: f.organizer, Name: "Fest merch", Type: models.EventTypeMerch,
		Eligibility: models.EligibilityAll, PublishedAt: &published,
		MerchItems: []models.MerchItem{{Name: "Hoodie", Price: 800, StockQty: intp(3)}}}
	_, err := f.store.CreateEvent(ctx, shop)
	require.NoError(t, err)
	orders := merch.NewService(merch.Deps{
		Store: f.store, Events: events.NewService(f.store, clock, nil), Profiles: f.store,
		Ledger: f.store.Ledger(), Notifier: discardNotifier{}, Clock: clock,
	})
	place := func() models.MerchOrder {
		p := uuid.New()
		f.store.PutParticipant(models.ParticipantProfile{UserID: p, Email: "buyer@example.com", ParticipantType: models.ParticipantIIIT})
		o, err := orders.CreateOrder(ctx, merch.CreateOrderInput{EventID: shop.ID, ParticipantID: p,
			Items: []merch.LineInput{{ItemName: "Hoodie", Quantity: 1}}, PaymentProofURL: "https://proofs.example.com/1.png"})
		require.NoError(t, err)
		return o
	}

	pending := place()
	assert.Nil(t, pending.TicketID)
	res, err := orders.Approve(ctx, pending.ID, f.organizer)
	require.NoError(t, err)
	require.NotNil(t, res.Order.TicketID)
	payload := tickets.EncodePayload(models.Ticket{TicketID: *res.Order.TicketID, EventID: shop.ID,
		ParticipantID: pending.ParticipantID, Origin: models.OriginMerch})

	rec, err := f.svc.Scan(ctx, attendance.ScanInput{EventID: shop.ID, OrganizerID: f.organizer, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, models.OriginMerch, rec.Origin)
	assert.Equal(t, pending.ParticipantID, rec.ParticipantID)
	_, err = f.svc.Scan(ctx, attendance.ScanInput{EventID: shop.ID, OrganizerID: f.organizer, Payload: payload})
	assert.ErrorIs(t, err, apperr.ErrAlreadyAttended)
	_, err = f.svc.Scan(ctx, attendance.ScanInput{EventID: f.event.ID, OrganizerID: f.organizer, Payload: payload})
	assert.ErrorIs(t, err, apperr.ErrTicketNotFound)

	rejected, err := orders.Reject(ctx, place().ID, f.organizer, "")
	require.NoError(t, err)
	assert.Nil(t, rejected.Order.TicketID)

	sum, err := f.svc.Summary(ctx, shop.ID, f.organizer)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceSummary{EventID: shop.ID, TotalTickets: 1, Attended: 1}, sum)
}

func TestConcurrentScansRecordOnce(t *testing.T) {
	f := newFixture(t)
	tk := f.register(t, f.event)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Scan(context.Background(), attendance.ScanInput{EventID: f.event.ID, OrganizerID: f.organizer, TicketID: tk.TicketID})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyAttended)
	}
	assert.Equal(t, 1, ok)
}

func TestManualIsOverride(t *testing.T) {
	f := newFixture(t)
	tk := f.register(t, f.event)
	f.register(t, f.event)

	rec, err := f.svc.Manual(context.Background(), attendance.ManualInput{
		EventID: f.event.ID, OrganizerID: f.organizer, TicketID: tk.TicketID, Note: "phone died",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, rec.Method)
	assert.True(t, rec.Override)
	assert.Equal(t, "phone died", rec.Note)

	sum, err := f.svc.Summary(context.Background(), f.event.ID, f.organizer)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalTickets)
	assert.Equal(t, 1, sum.NotAttended)
}

func TestScanRejects(t *testing.T) {
	f := newFixture(t)
	other := f.addEvent(t)
	foreign := f.register(t, other)
	cancelled := f.register(t, f.event)
	_, err := f.store.CancelRegistration(context.Background(), f.event.ID, cancelled.ParticipantID, now)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   attendance.ScanInput
		code string
	}{
		{name: "garbage", in: attendance.ScanInput{Payload: "not json"}, code: apperr.CodeInvalidScanPayload},
		{name: "no ticket id", in: attendance.ScanInput{Payload: `{"eventId":"x"}`}, code: apperr.CodeInvalidScanPayload},
		{name: "empty", in: attendance.ScanInput{}, code: apperr.CodeInvalidInput},
		{name: "other event payload", in: attendance.ScanInput{Payload: foreign.Payload}, code: apperr.CodeTicketNotFound},
		{name: "other event ticket id", in: attendance.ScanInput{TicketID: foreign.TicketID}, code: apperr.CodeTicketNotFound},
		{name: "unknown ticket", in: attendance.ScanInput{TicketID: "FEL-NOPE-000000"}, code: apperr.CodeTicketNotFound},
		{name: "cancelled registration", in: attendance.ScanInput{Payload: cancelled.Payload}, code: apperr.CodeRegistrationInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.EventID, tt.in.OrganizerID = f.event.ID, f.organizer
			_, err := f.svc.Scan(context.Background(), tt.in)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	t.Run("not owner", func(t *testing.T) {
		_, err := f.svc.Scan(context.Background(), attendance.ScanInput{EventID: f.event.ID, OrganizerID: uuid.New(), TicketID: cancelled.TicketID})
		assert.ErrorIs(t, err, apperr.ErrNotEventOwner)
	})
}
