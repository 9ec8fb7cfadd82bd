// Package merch runs the merchandise order workflow: orders are placed against per-user
// quotas, and stock is only consumed when an organizer approves an order.
package merch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/lifecycle"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/tickets"
)

// Store persists orders.
//
// CreateOrder applies every claim (per-item quota of the participant) and inserts the order
// in one transaction; a rejected claim yields apperr.ErrPerUserLimit.
// ApproveOrder moves a PENDING order to APPROVED, decrements the stock of every line and
// inserts the ticket in one transaction (apperr.ErrOrderNotPending, apperr.ErrStockDepleted).
// RejectOrder moves a PENDING order to REJECTED and releases its quota claims.
type Store interface {
	CreateOrder(ctx context.Context, o models.MerchOrder, claims []capacity.Request) (models.MerchOrder, error)
	GetOrder(ctx context.Context, id uuid.UUID) (models.MerchOrder, error)
	ApproveOrder(ctx context.Context, id uuid.UUID, ticket models.Ticket, at time.Time) (models.MerchOrder, error)
	RejectOrder(ctx context.Context, id uuid.UUID, comment string, at time.Time) (models.MerchOrder, error)
	ListOrders(ctx context.Context, eventID uuid.UUID, status models.OrderStatus) ([]models.MerchOrder, error)
}

// Events resolves events and their owners.
type Events interface {
	GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error)
	RequireOwner(ctx context.Context, eventID, organizerID uuid.UUID) (models.Event, error)
}

// Profiles resolves participant profiles.
type Profiles interface {
	GetParticipant(ctx context.Context, id uuid.UUID) (models.ParticipantProfile, error)
}

// Notifier publishes notifications after commit.
type Notifier interface {
	Dispatch(ctx context.Context, m notify.Message) bool
}

// Service implements the order workflow.
type Service struct {
	store    Store
	events   Events
	profiles Profiles
	ledger   capacity.Ledger
	notifier Notifier
	clock    lifecycle.Clock
	logger   *zap.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Store    Store
	Events   Events
	Profiles Profiles
	Ledger   capacity.Ledger
	Notifier Notifier
	Clock    lifecycle.Clock
	Logger   *zap.Logger
}

// NewService creates a merch service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = lifecycle.SystemClock
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		store: d.Store, events: d.Events, profiles: d.Profiles, ledger: d.Ledger,
		notifier: d.Notifier, clock: d.Clock, logger: d.Logger,
	}
}

// MaxLineQuantity caps the units of one item in a single order.
const MaxLineQuantity = 1000

// LineInput is one requested line.
type LineInput struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Variant  string `json:"variant,omitempty"`
}

// CreateOrderInput is a participant's order.
type CreateOrderInput struct {
	EventID         uuid.UUID
	ParticipantID   uuid.UUID
	Items           []LineInput
	PaymentProofURL string
}

// OrderResult is returned by approve and reject. NotificationQueued is advisory.
type OrderResult struct {
	Order              models.MerchOrder `json:"order"`
	NotificationQueued bool              `json:"notification_queued"`
}

func (s *Service) merchEvent(ctx context.Context, id uuid.UUID) (models.Event, error) {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if e.Type != models.EventTypeMerch {
		return models.Event{}, apperr.Validation(apperr.CodeNotMerchEvent, "event does not sell merchandise")
	}
	return e, nil
}

// CreateOrder validates the order, prices it and claims the participant's quota.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (models.MerchOrder, error) {
	e, err := s.merchEvent(ctx, in.EventID)
	if err != nil {
		return models.MerchOrder{}, err
	}
	now := s.clock()
	if !lifecycle.AcceptsOrders(lifecycle.Resolve(e, now)) {
		return models.MerchOrder{}, apperr.Validation(apperr.CodeNotAcceptingOrders, "event is not accepting orders")
	}
	if len(in.Items) == 0 {
		return models.MerchOrder{}, apperr.Validation(apperr.CodeInvalidInput, "order has no items")
	}
	proof := strings.TrimSpace(in.PaymentProofURL)
	if proof == "" {
		return models.MerchOrder{}, apperr.Validation(apperr.CodePaymentProofRequired, "payment proof is required")
	}

	lines, err := buildLines(e, in.Items)
	if err != nil {
		return models.MerchOrder{}, err
	}
	order := models.MerchOrder{
		ID:              uuid.New(),
		EventID:         e.ID,
		ParticipantID:   in.ParticipantID,
		Items:           lines,
		Status:          models.OrderPending,
		PaymentProofURL: proof,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, l := range lines {
		order.TotalAmount += l.UnitPrice * float64(l.Quantity)
	}

	quantities := order.Quantities()
	claims := make([]capacity.Request, 0, len(quantities))
	for _, name := range sortedNames(quantities) {
		item, _ := e.Item(name)
		if item.PerUserLimit != nil && quantities[name] > *item.PerUserLimit {
			return models.MerchOrder{}, apperr.ErrPerUserLimit.WithMessage("at most %d %s per participant", *item.PerUserLimit, name)
		}
		if item.StockQty != nil && quantities[name] > *item.StockQty {
			return models.MerchOrder{}, apperr.ErrInsufficientStock.WithMessage("only %d %s left in stock", *item.StockQty, name)
		}
		claims = append(claims, capacity.Request{
			Key:             capacity.MerchKey(e.ID, name),
			Claimant:        in.ParticipantID.String(),
			Units:           quantities[name],
			ClaimantCeiling: item.PerUserLimit,
		})
	}

	var created models.MerchOrder
	err = tickets.WithFreshIDs(func() error {
		var err error
		order.OrderID = tickets.NewOrderID(now)
		created, err = s.store.CreateOrder(ctx, order, claims)
		return err
	})
	if err != nil {
		return models.MerchOrder{}, err
	}
	s.logger.Info("merch order placed",
		zap.String("order_id", created.OrderID),
		zap.String("event_id", e.ID.String()),
		zap.Float64("total", created.TotalAmount))
	return created, nil
}

// buildLines checks items and variants, snapshots prices and merges lines that name the
// same item and variant. The units of one item across its lines never exceed MaxLineQuantity.
func buildLines(e models.Event, in []LineInput) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	index := map[[2]string]int{}
	totals := map[string]int{}
	for _, li := range in {
		name := strings.TrimSpace(li.ItemName)
		item, ok := e.Item(name)
		if !ok {
			return nil, apperr.Validation(apperr.CodeItemNotFound, "item %q not found", li.ItemName)
		}
		if li.Quantity < 1 {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "quantity for %q must be at least 1", name)
		}
		if li.Quantity > MaxLineQuantity || totals[name] > MaxLineQuantity-li.Quantity {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "at most %d %q per order", MaxLineQuantity, name)
		}
		totals[name] += li.Quantity
		if !item.HasVariant(li.Variant) {
			return nil, apperr.Validation(apperr.CodeInvalidVariant, "variant %q is not offered for %q", li.Variant, name)
		}
		k := [2]string{name, li.Variant}
		if i, ok := index[k]; ok {
			lines[i].Quantity += li.Quantity
			continue
		}
		index[k] = len(lines)
		lines = append(lines, models.OrderLine{ItemName: name, UnitPrice: item.Price, Quantity: li.Quantity, Variant: li.Variant})
	}
	return lines, nil
}

// sortedNames orders item names so every transaction touches rows in the same order.
func sortedNames(q map[string]int) []string {
	names := make([]string, 0, len(q))
	for n := range q {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Service) pendingOwned(ctx context.Context, orderID, organizerID uuid.UUID) (models.MerchOrder, models.Event, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.MerchOrder{}, models.Event{}, err
	}
	e, err := s.events.RequireOwner(ctx, o.EventID, organizerID)
	if err != nil {
		return models.MerchOrder{}, models.Event{}, err
	}
	if o.Status != models.OrderPending {
		return models.MerchOrder{}, models.Event{}, apperr.ErrOrderNotPending
	}
	return o, e, nil
}

// Approve consumes stock for every line and issues the pickup ticket.
func (s *Service) Approve(ctx context.Context, orderID, organizerID uuid.UUID) (OrderResult, error) {
	o, e, err := s.pendingOwned(ctx, orderID, organizerID)
	if err != nil {
		return OrderResult{}, err
	}
	now := s.clock()
	var ticket models.Ticket
	var approved models.MerchOrder
	err = tickets.WithFreshIDs(func() error {
		ticket = tickets.New(models.OriginMerch, o.EventID, o.ParticipantID, now)
		ticket.OrderID = &o.ID
		var err error
		approved, err = s.store.ApproveOrder(ctx, o.ID, ticket, now)
		return err
	})
	if err != nil {
		return OrderResult{}, err
	}
	s.logger.Info("merch order approved", zap.String("order_id", approved.OrderID), zap.String("ticket_id", ticket.TicketID))
	return OrderResult{Order: approved, NotificationQueued: s.notifyParticipant(ctx, approved, func(p models.ParticipantProfile) notify.Message {
		return notify.OrderApproved(p, e, approved)
	})}, nil
}

// Reject closes the order and gives the participant's quota back.
func (s *Service) Reject(ctx context.Context, orderID, organizerID uuid.UUID, comment string) (OrderResult, error) {
	o, e, err := s.pendingOwned(ctx, orderID, organizerID)
	if err != nil {
		return OrderResult{}, err
	}
	rejected, err := s.store.RejectOrder(ctx, o.ID, strings.TrimSpace(comment), s.clock())
	if err != nil {
		return OrderResult{}, err
	}
	s.logger.Info("merch order rejected", zap.String("order_id", rejected.OrderID))
	return OrderResult{Order: rejected, NotificationQueued: s.notifyParticipant(ctx, rejected, func(p models.ParticipantProfile) notify.Message {
		return notify.OrderRejected(p, e, rejected)
	})}, nil
}

func (s *Service) notifyParticipant(ctx context.Context, o models.MerchOrder, build func(models.ParticipantProfile) notify.Message) bool {
	p, err := s.profiles.GetParticipant(ctx, o.ParticipantID)
	if err != nil {
		s.logger.Warn("notification skipped: profile unavailable", zap.String("order_id", o.OrderID), zap.Error(err))
		return false
	}
	return s.notifier.Dispatch(ctx, build(p))
}

// CatalogItem is a merch item with the caller's standing against its per-user limit.
type CatalogItem struct {
	models.MerchItem
	Claimed   int  `json:"claimed"`
	Remaining *int `json:"remaining,omitempty"`
}

// Catalog lists the items of a merch event for a participant.
func (s *Service) Catalog(ctx context.Context, eventID, participantID uuid.UUID) ([]CatalogItem, error) {
	e, err := s.merchEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogItem, 0, len(e.MerchItems))
	for _, it := range e.MerchItems {
		held, err := s.ledger.ClaimantUnits(ctx, capacity.MerchKey(e.ID, it.Name), participantID.String())
		if err != nil {
			return nil, err
		}
		ci := CatalogItem{MerchItem: it, Claimed: held}
		if it.PerUserLimit != nil {
			left := max(*it.PerUserLimit-held, 0)
			ci.Remaining = &left
		}
		out = append(out, ci)
	}
	return out, nil
}

// ListOrders returns the orders of an owned event, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, eventID, organizerID uuid.UUID, status models.OrderStatus) ([]models.MerchOrder, error) {
	if _, err := s.events.RequireOwner(ctx, eventID, organizerID); err != nil {
		return nil, err
	}
	switch status {
	case "", models.OrderPending, models.OrderApproved, models.OrderRejected:
	default:
		return nil, apperr.Validation(apperr.CodeInvalidInput, "unknown order status %q", status)
	}
	return s.store.ListOrders(ctx, eventID, status)
}
