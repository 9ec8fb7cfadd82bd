package merch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/events"
	"github.com/felicity-events/backend/internal/merch"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/store/memory"
)

var _ merch.Store = (*memory.Store)(nil)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Dispatch(context.Context, notify.Message) bool {
	c.n.Add(1)
	return true
}

type fixture struct {
	store     *memory.Store
	svc       *merch.Service
	notifier  *countingNotifier
	organizer uuid.UUID
	event     models.Event
}

func intp(v int) *int { return &v }

func newFixture(t *testing.T, items ...models.MerchItem) *fixture {
	t.Helper()
	st := memory.New()
	clock := func() time.Time { return now }
	org := uuid.New()
	start, end := now.Add(24*time.Hour), now.Add(48*time.Hour)
	published := now.Add(-time.Hour)
	e := models.Event{
		ID: uuid.New(), OrganizerID: org, Name: "Fest merch", Type: models.EventTypeMerch,
		Eligibility: models.EligibilityAll, StartDate: &start, EndDate: &end, PublishedAt: &published,
		MerchItems: items,
	}
	_, err := st.CreateEvent(context.Background(), e)
	require.NoError(t, err)
	n := &countingNotifier{}
	return &fixture{
		store:    st,
		notifier: n,
		svc: merch.NewService(merch.Deps{
			Store:    st,
			Events:   events.NewService(st, clock, nil),
			Profiles: st,
			Ledger:   st.Ledger(),
			Notifier: n,
			Clock:    clock,
		}),
		organizer: org,
		event:     e,
	}
}

func (f *fixture) participant() uuid.UUID {
	id := uuid.New()
	f.store.PutParticipant(models.ParticipantProfile{UserID: id, Email: "p@example.com", ParticipantType: models.ParticipantIIIT})
	return id
}

func (f *fixture) order(t *testing.T, p uuid.UUID, lines ...merch.LineInput) models.MerchOrder {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), merch.CreateOrderInput{
		EventID: f.event.ID, ParticipantID: p, Items: lines, PaymentProofURL: "https://proofs.example.com/1.png",
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) stock(t *testing.T, name string) *int {
	t.Helper()
	e, err := f.store.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	it, ok := e.Item(name)
	require.True(t, ok)
	return it.StockQty
}

func TestCreateOrderPricesAndMerges(t *testing.T) {
	f := newFixture(t,
		models.MerchItem{Name: "Hoodie", Price: 800, StockQty: intp(10), Variants: []string{"S", "M"}},
		models.MerchItem{Name: "Sticker", Price: 20.5})
	p := f.participant()

	o := f.order(t, p,
		merch.LineInput{ItemName: "Hoodie", Quantity: 1, Variant: "M"},
		merch.LineInput{ItemName: "Sticker", Quantity: 2},
		merch.LineInput{ItemName: "Hoodie", Quantity: 1, Variant: "M"})

	assert.Equal(t, models.OrderPending, o.Status)
	assert.Regexp(t, `^ORD-[0-9A-Z]+-[0-9A-F]{6}$`, o.OrderID)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.InDelta(t, 1641.0, o.TotalAmount, 0.001)
	assert.Equal(t, 10, *f.stock(t, "Hoodie"), "stock only moves on approval")
}

func TestCreateOrderRejects(t *testing.T) {
	f := newFixture(t, models.MerchItem{Name: "Hoodie", Price: 800, StockQty: intp(2), Variants: []string{"S", "M"}})
	p := f.participant()
	tests := []struct {
		name  string
		lines []merch.LineInput
		proof string
		code  string
	}{
		{name: "no items", proof: "x", code: apperr.CodeInvalidInput},
		{name: "no proof", lines: []merch.LineInput{{ItemName: "Hoodie", Quantity: 1, Variant: "S"}}, code: apperr.CodePaymentProofRequired},
		{name: "unknown item", lines: []merch.LineInput{{ItemName: "Mug", Quantity: 1}}, proof: "x", code: apperr.CodeItemNotFound},
		{name: "zero quantity", lines: []merch.LineInput{{ItemName: "Hoodie", Quantity: 0, Variant: "S"}}, proof: "x", code: apperr.CodeInvalidInput},
		{name: "bad variant", lines: []merch.LineInput{{ItemName: "Hoodie", Quantity: 1, Variant: "XL"}}, proof: "x", code: apperr.CodeInvalidVariant},
		{name: "over stock", lines: []merch.LineInput{{ItemName: "Hoodie", Quantity: 2, Variant: "S"}, {ItemName: "Hoodie", Quantity: 1, Variant: "M"}}, proof: "x", code: apperr.CodeInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), merch.CreateOrderInput{
				EventID: f.event.ID, ParticipantID: p, Items: tt.lines, PaymentProofURL: tt.proof,
			})
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestCreateOrderNeedsMerchEvent(t *testing.T) {
	f := newFixture(t)
	start := now.Add(time.Hour)
	published := now
	normal := models.Event{ID: uuid.New(), OrganizerID: f.organizer, Name: "Talk", Type: models.EventTypeNormal,
		Eligibility: models.EligibilityAll, StartDate: &start, PublishedAt: &published}
	_, err := f.store.CreateEvent(context.Background(), normal)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(context.Background(), merch.CreateOrderInput{EventID: normal.ID, ParticipantID: uuid.New()})
	assert.Equal(t, apperr.CodeNotMerchEvent, apperr.CodeOf(err))
}

func TestPerUserLimit(t *testing.T) {
	f := newFixture(t, models.MerchItem{Name: "Badge", Price: 50, PerUserLimit: intp(2)})
	p := f.participant()
	ctx := context.Background()

	first := f.order(t, p, merch.LineInput{ItemName: "Badge", Quantity: 2})
	_, err := f.svc.CreateOrder(ctx, merch.CreateOrderInput{EventID: f.event.ID, ParticipantID: p,
		Items: []merch.LineInput{{ItemName: "Badge", Quantity: 1}}, PaymentProofURL: "x"})
	assert.ErrorIs(t, err, apperr.ErrPerUserLimit)

	catalog, err := f.svc.Catalog(ctx, f.event.ID, p)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, 2, catalog[0].Claimed)
	assert.Equal(t, 0, *catalog[0].Remaining)

	res, err := f.svc.Reject(ctx, first.ID, f.organizer, "blurry receipt")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, res.Order.Status)
	assert.Equal(t, "blurry receipt", res.Order.Comment)
	assert.Nil(t, res.Order.TicketID)

	f.order(t, p, merch.LineInput{ItemName: "Badge", Quantity: 2})
}

func TestCreateOrderBoundsQuantities(t *testing.T) {
	f := newFixture(t,
		models.MerchItem{Name: "Hoodie", Price: 800, StockQty: intp(5), PerUserLimit: intp(2), Variants: []string{"S", "M", "L"}},
		models.MerchItem{Name: "Sticker", Price: 10})
	p := f.participant()
	ctx := context.Background()
	const maxInt = int(^uint(0) >> 1)

	tests := []struct {
		name  string
		lines []merch.LineInput
		code  string
	}{
		{name: "wrapping sum", lines: []merch.LineInput{
			{ItemName: "Hoodie", Quantity: maxInt, Variant: "S"},
			{ItemName: "Hoodie", Quantity: maxInt, Variant: "M"},
			{ItemName: "Hoodie", Quantity: 4, Variant: "L"},
		}, code: apperr.CodeInvalidInput},
		{name: "single line over cap", lines: []merch.LineInput{{ItemName: "Sticker", Quantity: merch.MaxLineQuantity + 1}}, code: apperr.CodeInvalidInput},
		{name: "merged lines over cap", lines: []merch.LineInput{
			{ItemName: "Sticker", Quantity: merch.MaxLineQuantity},
			{ItemName: "Sticker", Quantity: 1},
		}, code: apperr.CodeInvalidInput},
		{name: "variants over per-user limit", lines: []merch.LineInput{
			{ItemName: "Hoodie", Quantity: 2, Variant: "S"},
			{ItemName: "Hoodie", Quantity: 1, Variant: "M"},
		}, code: apperr.CodePerUserLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, merch.CreateOrderInput{
				EventID: f.event.ID, ParticipantID: p, Items: tt.lines, PaymentProofURL: "x",
			})
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	orders, err := f.store.ListOrders(ctx, f.event.ID, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
	catalog, err := f.svc.Catalog(ctx, f.event.ID, p)
	require.NoError(t, err)
	for _, it := range catalog {
		assert.Zero(t, it.Claimed, it.Name)
	}

	o := f.order(t, p, merch.LineInput{ItemName: "Sticker", Quantity: merch.MaxLineQuantity})
	assert.InDelta(t, 10000.0, o.TotalAmount, 0.001)
}

func TestOrderRequestValidate(t *testing.T) {
	ok := merch.OrderRequest{Items: []merch.LineInput{{ItemName: "Hoodie", Quantity: 1}}, PaymentProofURL: "https://proofs.example.com/1.png"}
	assert.NoError(t, ok.Validate())

	tests := map[string]merch.OrderRequest{
		"no items":      {PaymentProofURL: "x"},
		"no proof":      {Items: ok.Items},
		"zero quantity": {Items: []merch.LineInput{{ItemName: "Hoodie"}}, PaymentProofURL: "x"},
		"negative":      {Items: []merch.LineInput{{ItemName: "Hoodie", Quantity: -3}}, PaymentProofURL: "x"},
		"over cap":      {Items: []merch.LineInput{{ItemName: "Hoodie", Quantity: merch.MaxLineQuantity + 1}}, PaymentProofURL: "x"},
		"no item name":  {Items: []merch.LineInput{{Quantity: 1}}, PaymentProofURL: "x"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, req.Validate())
		})
	}
}

func TestHoodieStockTwo(t *testing.T) {
	f := newFixture(t, models.MerchItem{Name: "Hoodie", Price: 800, StockQty: intp(2)})
	ctx := context.Background()
	a := f.order(t, f.participant(), merch.LineInput{ItemName: "Hoodie", Quantity: 2})
	b := f.order(t, f.participant(), merch.LineInput{ItemName: "Hoodie", Quantity: 2})

	res, err := f.svc.Approve(ctx, a.ID, f.organizer)
	require.NoError(t, err)
	assert.Equal(t, models.OrderApproved, res.Order.Status)
	require.NotNil(t, res.Order.TicketID)
	assert.True(t, res.NotificationQueued)
	assert.Equal(t, 0, *f.stock(t, "Hoodie"))

	_, err = f.svc.Approve(ctx, b.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrStockDepleted)
	assert.Equal(t, 0, *f.stock(t, "Hoodie"))
	still, err := f.store.GetOrder(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, still.Status)

	_, err = f.svc.Approve(ctx, a.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrOrderNotPending)

	lineage, err := f.store.ResolveTicket(ctx, f.event.ID, *res.Order.TicketID)
	require.NoError(t, err)
	assert.True(t, lineage.Active)
	assert.Equal(t, models.OriginMerch, lineage.Ticket.Origin)
}

func TestConcurrentApprovalsNeverOversell(t *testing.T) {
	const stock, orders = 5, 12
	f := newFixture(t, models.MerchItem{Name: "Cap", Price: 300, StockQty: intp(stock)})
	ids := make([]uuid.UUID, orders)
	for i := range ids {
		ids[i] = f.order(t, f.participant(), merch.LineInput{ItemName: "Cap", Quantity: 1}).ID
	}

	var approved atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Approve(context.Background(), id, f.organizer)
			if err == nil {
				approved.Add(1)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrStockDepleted)
		}(id)
	}
	wg.Wait()

	assert.EqualValues(t, stock, approved.Load())
	assert.Equal(t, 0, *f.stock(t, "Cap"))
}

func TestMultiItemApprovalIsAtomic(t *testing.T) {
	f := newFixture(t,
		models.MerchItem{Name: "Hoodie", Price: 800, StockQty: intp(5)},
		models.MerchItem{Name: "Mug", Price: 200, StockQty: intp(1)})
	ctx := context.Background()
	first := f.order(t, f.participant(), merch.LineInput{ItemName: "Mug", Quantity: 1})
	both := f.order(t, f.participant(), merch.LineInput{ItemName: "Hoodie", Quantity: 2}, merch.LineInput{ItemName: "Mug", Quantity: 1})

	_, err := f.svc.Approve(ctx, first.ID, f.organizer)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, both.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrStockDepleted)
	assert.Equal(t, 5, *f.stock(t, "Hoodie"), "no partial decrement")
}

func TestApproveRequiresOwner(t *testing.T) {
	f := newFixture(t, models.MerchItem{Name: "Cap", Price: 300})
	o := f.order(t, f.participant(), merch.LineInput{ItemName: "Cap", Quantity: 1})

	_, err := f.svc.Approve(context.Background(), o.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotEventOwner)
	_, err = f.svc.Reject(context.Background(), uuid.New(), f.organizer, "")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	list, err := f.svc.ListOrders(context.Background(), f.event.ID, f.organizer, models.OrderPending)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
