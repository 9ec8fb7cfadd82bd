// Package memory is an in-process implementation of every store interface, used when
// STORE_DRIVER=memory and by the tests. One mutex serializes all writes, so each operation
// is atomic in the same way the Postgres transactions are.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/capacity"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/tickets"
)

type regKey struct {
	event       uuid.UUID
	participant uuid.UUID
}

type ticketKey struct {
	event  uuid.UUID
	ticket string
}

// Store holds all state in maps guarded by mu.
type Store struct {
	mu sync.Mutex

	ledger        *capacity.Memory
	events        map[uuid.UUID]models.Event
	forms         map[uuid.UUID]models.FormSchema
	registrations map[regKey]models.Registration
	answers       map[regKey]map[string]string
	orders        map[uuid.UUID]models.MerchOrder
	orderIDs      map[string]uuid.UUID
	tickets       map[string]models.Ticket
	attendance    map[ticketKey]models.AttendanceRecord
	participants  map[uuid.UUID]models.ParticipantProfile
	logs          []models.NotificationLog
}

// New returns an empty store.
func New() *Store {
	return &Store{
		ledger:        capacity.NewMemory(),
		events:        map[uuid.UUID]models.Event{},
		forms:         map[uuid.UUID]models.FormSchema{},
		registrations: map[regKey]models.Registration{},
		answers:       map[regKey]map[string]string{},
		orders:        map[uuid.UUID]models.MerchOrder{},
		orderIDs:      map[string]uuid.UUID{},
		tickets:       map[string]models.Ticket{},
		attendance:    map[ticketKey]models.AttendanceRecord{},
		participants:  map[uuid.UUID]models.ParticipantProfile{},
	}
}

// Ledger returns the capacity ledger view of the store. It shares the store lock, so its
// reads are consistent with concurrent registrations and orders.
func (s *Store) Ledger() capacity.Ledger {
	return ledgerView{s: s}
}

type ledgerView struct{ s *Store }

func (l ledgerView) TryClaim(_ context.Context, req capacity.Request) (capacity.Result, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.ledger.TryClaimLocked(req)
}

func (l ledgerView) Release(_ context.Context, key, claimant string, units int) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.ledger.ReleaseLocked(key, claimant, units)
	return nil
}

func (l ledgerView) ClaimantUnits(_ context.Context, key, claimant string) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.ledger.ClaimantUnitsLocked(key, claimant), nil
}

func (l ledgerView) TotalUnits(_ context.Context, key string) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.ledger.TotalUnitsLocked(key), nil
}

func copyEvent(e models.Event) models.Event {
	e.Tags = append([]string(nil), e.Tags...)
	if e.MerchItems != nil {
		items := make([]models.MerchItem, len(e.MerchItems))
		for i, it := range e.MerchItems {
			items[i] = copyItem(it)
		}
		e.MerchItems = items
	}
	return e
}

func copyItem(it models.MerchItem) models.MerchItem {
	if it.StockQty != nil {
		v := *it.StockQty
		it.StockQty = &v
	}
	if it.PerUserLimit != nil {
		v := *it.PerUserLimit
		it.PerUserLimit = &v
	}
	it.Variants = append([]string(nil), it.Variants...)
	return it
}

func copyOrder(o models.MerchOrder) models.MerchOrder {
	o.Items = append([]models.OrderLine(nil), o.Items...)
	if o.TicketID != nil {
		v := *o.TicketID
		o.TicketID = &v
	}
	return o
}

// PutParticipant creates or replaces a participant profile.
func (s *Store) PutParticipant(p models.ParticipantProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.UserID] = p
}

func (s *Store) GetParticipant(_ context.Context, id uuid.UUID) (models.ParticipantProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok || p.ParticipantType == "" {
		return models.ParticipantProfile{}, apperr.ErrProfileNotFound
	}
	return p, nil
}

// Events

func (s *Store) CreateEvent(_ context.Context, e models.Event) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return models.Event{}, apperr.Conflict(apperr.CodeInvalidInput, "event %s already exists", e.ID)
	}
	s.events[e.ID] = copyEvent(e)
	return copyEvent(e), nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return models.Event{}, apperr.ErrEventNotFound
	}
	return copyEvent(e), nil
}

func (s *Store) UpdateEvent(_ context.Context, e models.Event, prevUpdatedAt time.Time) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[e.ID]
	if !ok {
		return models.Event{}, apperr.ErrEventNotFound
	}
	if !cur.UpdatedAt.Equal(prevUpdatedAt) {
		return models.Event{}, apperr.ErrEventModified
	}
	e.MerchItems = cur.MerchItems
	e.PublishedAt = cur.PublishedAt
	e.CreatedAt = cur.CreatedAt
	e.OrganizerID = cur.OrganizerID
	s.events[e.ID] = copyEvent(e)
	return copyEvent(e), nil
}

func (s *Store) PublishEvent(_ context.Context, id uuid.UUID, at time.Time) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return models.Event{}, apperr.ErrEventNotFound
	}
	if e.PublishedAt != nil {
		return models.Event{}, apperr.ErrEventNotDraft
	}
	e.PublishedAt = &at
	e.StatusOverride = nil
	e.UpdatedAt = at
	s.events[id] = e
	return copyEvent(e), nil
}

func (s *Store) SetMerchItems(_ context.Context, id uuid.UUID, items []models.MerchItem, at time.Time) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return models.Event{}, apperr.ErrEventNotFound
	}
	if e.PublishedAt != nil {
		return models.Event{}, apperr.ErrEventNotDraft
	}
	e.MerchItems = copyEvent(models.Event{MerchItems: items}).MerchItems
	e.UpdatedAt = at
	s.events[id] = e
	return copyEvent(e), nil
}

// Forms

func (s *Store) GetFormSchema(_ context.Context, eventID uuid.UUID) (models.FormSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forms[eventID]
	if !ok {
		return models.FormSchema{EventID: eventID}, nil
	}
	f.Fields = append([]models.FormField(nil), f.Fields...)
	return f, nil
}

func (s *Store) CountRegistrations(_ context.Context, eventID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countRegistrationsLocked(eventID), nil
}

func (s *Store) countRegistrationsLocked(eventID uuid.UUID) int {
	n := 0
	for k := range s.registrations {
		if k.event == eventID {
			n++
		}
	}
	return n
}

func (s *Store) SaveFormSchema(_ context.Context, eventID uuid.UUID, fields []models.FormField, at time.Time) (models.FormSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return models.FormSchema{}, apperr.ErrEventNotFound
	}
	if s.countRegistrationsLocked(eventID) > 0 {
		return models.FormSchema{}, apperr.ErrFormLocked
	}
	f, ok := s.forms[eventID]
	if !ok {
		f = models.FormSchema{EventID: eventID, CreatedAt: at}
	}
	f.Fields = append([]models.FormField(nil), fields...)
	f.Version++
	f.UpdatedAt = at
	s.forms[eventID] = f
	return f, nil
}

// Registrations

func (s *Store) CreateRegistration(_ context.Context, reg models.Registration, ticket models.Ticket, answers map[string]string, formVersion int) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[reg.EventID]
	if !ok {
		return models.Registration{}, apperr.ErrEventNotFound
	}
	k := regKey{reg.EventID, reg.ParticipantID}
	if _, ok := s.registrations[k]; ok {
		return models.Registration{}, apperr.ErrAlreadyRegistered
	}
	snap := s.ledger.SnapshotLocked()
	res, err := s.ledger.TryClaimLocked(capacity.Request{
		Key:      capacity.RegistrationKey(reg.EventID),
		Claimant: reg.ParticipantID.String(),
		Units:    1,
		Ceiling:  e.RegistrationLimit,
	})
	if err != nil {
		return models.Registration{}, err
	}
	if !res.Accepted {
		return models.Registration{}, apperr.ErrLimitReached
	}
	if s.forms[reg.EventID].Version != formVersion {
		s.ledger.RestoreLocked(snap)
		return models.Registration{}, apperr.ErrFormChanged
	}
	if _, ok := s.tickets[ticket.TicketID]; ok {
		s.ledger.RestoreLocked(snap)
		return models.Registration{}, tickets.ErrIDTaken
	}
	s.registrations[k] = reg
	s.tickets[ticket.TicketID] = ticket
	if answers != nil {
		cp := make(map[string]string, len(answers))
		for q, a := range answers {
			cp[q] = a
		}
		s.answers[k] = cp
	}
	return reg, nil
}

func (s *Store) CancelRegistration(_ context.Context, eventID, participantID uuid.UUID, at time.Time) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := regKey{eventID, participantID}
	reg, ok := s.registrations[k]
	if !ok {
		return models.Registration{}, apperr.ErrRegistrationNotFound
	}
	if reg.Status != models.RegistrationRegistered {
		return models.Registration{}, apperr.ErrRegistrationInactive
	}
	reg.Status = models.RegistrationCancelled
	reg.UpdatedAt = at
	s.registrations[k] = reg
	s.ledger.ReleaseLocked(capacity.RegistrationKey(eventID), participantID.String(), 1)
	return reg, nil
}

func (s *Store) GetRegistration(_ context.Context, eventID, participantID uuid.UUID) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[regKey{eventID, participantID}]
	if !ok {
		return models.Registration{}, apperr.ErrRegistrationNotFound
	}
	return reg, nil
}

// FormResponse returns the stored answers of a registration.
func (s *Store) FormResponse(eventID, participantID uuid.UUID) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[regKey{eventID, participantID}]
	return a, ok
}

// Orders

func (s *Store) CreateOrder(_ context.Context, o models.MerchOrder, claims []capacity.Request) (models.MerchOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orderIDs[o.OrderID]; ok {
		return models.MerchOrder{}, tickets.ErrIDTaken
	}
	snap := s.ledger.SnapshotLocked()
	for _, c := range claims {
		res, err := s.ledger.TryClaimLocked(c)
		if err != nil {
			s.ledger.RestoreLocked(snap)
			return models.MerchOrder{}, err
		}
		if !res.Accepted {
			s.ledger.RestoreLocked(snap)
			return models.MerchOrder{}, apperr.ErrPerUserLimit
		}
	}
	s.orders[o.ID] = copyOrder(o)
	s.orderIDs[o.OrderID] = o.ID
	return copyOrder(o), nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (models.MerchOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.MerchOrder{}, apperr.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) ApproveOrder(_ context.Context, id uuid.UUID, ticket models.Ticket, at time.Time) (models.MerchOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.MerchOrder{}, apperr.ErrOrderNotFound
	}
	if o.Status != models.OrderPending {
		return models.MerchOrder{}, apperr.ErrOrderNotPending
	}
	if _, ok := s.tickets[ticket.TicketID]; ok {
		return models.MerchOrder{}, tickets.ErrIDTaken
	}
	e := s.events[o.EventID]
	quantities := o.Quantities()
	// Check every line before touching stock so a depleted line leaves nothing behind.
	for name, q := range quantities {
		it, ok := e.Item(name)
		if !ok || (it.StockQty != nil && *it.StockQty < q) {
			return models.MerchOrder{}, apperr.ErrStockDepleted.WithMessage("%s is out of stock", name)
		}
	}
	for i := range e.MerchItems {
		it := &e.MerchItems[i]
		if q, ok := quantities[it.Name]; ok && it.StockQty != nil {
			left := *it.StockQty - q
			it.StockQty = &left
		}
	}
	tid := ticket.TicketID
	o.Status = models.OrderApproved
	o.TicketID = &tid
	o.UpdatedAt = at
	s.events[o.EventID] = e
	s.orders[id] = o
	s.tickets[ticket.TicketID] = ticket
	return copyOrder(o), nil
}

func (s *Store) RejectOrder(_ context.Context, id uuid.UUID, comment string, at time.Time) (models.MerchOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.MerchOrder{}, apperr.ErrOrderNotFound
	}
	if o.Status != models.OrderPending {
		return models.MerchOrder{}, apperr.ErrOrderNotPending
	}
	o.Status = models.OrderRejected
	o.Comment = comment
	o.UpdatedAt = at
	s.orders[id] = o
	for name, q := range o.Quantities() {
		s.ledger.ReleaseLocked(capacity.MerchKey(o.EventID, name), o.ParticipantID.String(), q)
	}
	return copyOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, eventID uuid.UUID, status models.OrderStatus) ([]models.MerchOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MerchOrder
	for _, o := range s.orders {
		if o.EventID == eventID && (status == "" || o.Status == status) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Tickets and attendance

func (s *Store) activeLocked(t models.Ticket) bool {
	switch t.Origin {
	case models.OriginRegistration:
		reg, ok := s.registrations[regKey{t.EventID, t.ParticipantID}]
		return ok && reg.TicketID == t.TicketID && reg.Status == models.RegistrationRegistered
	case models.OriginMerch:
		if t.OrderID == nil {
			return false
		}
		o, ok := s.orders[*t.OrderID]
		return ok && o.Status == models.OrderApproved
	}
	return false
}

func (s *Store) ResolveTicket(_ context.Context, eventID uuid.UUID, ticketID string) (models.TicketLineage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.EventID != eventID {
		return models.TicketLineage{}, apperr.ErrTicketNotFound
	}
	return models.TicketLineage{Ticket: t, Active: s.activeLocked(t)}, nil
}

func (s *Store) RecordAttendance(_ context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ticketKey{rec.EventID, rec.TicketID}
	if _, ok := s.attendance[k]; ok {
		return models.AttendanceRecord{}, apperr.ErrAlreadyAttended
	}
	s.attendance[k] = rec
	return rec, nil
}

func (s *Store) AttendanceSummary(_ context.Context, eventID uuid.UUID) (models.AttendanceSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := models.AttendanceSummary{EventID: eventID}
	for _, t := range s.tickets {
		if t.EventID != eventID || !s.activeLocked(t) {
			continue
		}
		sum.TotalTickets++
		if _, ok := s.attendance[ticketKey{eventID, t.TicketID}]; ok {
			sum.Attended++
		}
	}
	sum.NotAttended = sum.TotalTickets - sum.Attended
	return sum, nil
}

// Notification logs

func (s *Store) InsertNotificationLog(_ context.Context, l models.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func (s *Store) ListNotificationLogs(_ context.Context, eventID uuid.UUID) ([]models.NotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NotificationLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if l := s.logs[i]; l.EventID != nil && *l.EventID == eventID {
			out = append(out, l)
		}
	}
	return out, nil
}
