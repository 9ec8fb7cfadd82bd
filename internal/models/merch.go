package models

import (
	"time"

	"github.com/google/uuid"
)

// MerchItem is a purchasable item of a MERCH event.
type MerchItem struct {
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	StockQty     *int     `json:"stock_qty,omitempty"`      // nil = unlimited
	PerUserLimit *int     `json:"per_user_limit,omitempty"` // nil = unlimited
	Variants     []string `json:"variants,omitempty"`
}

// HasVariant reports whether v is acceptable for the item. Items without declared
// variants accept only the empty variant.
func (m MerchItem) HasVariant(v string) bool {
	if len(m.Variants) == 0 {
		return v == ""
	}
	for _, want := range m.Variants {
		if want == v {
			return true
		}
	}
	return false
}

// OrderStatus is monotonic: PENDING moves once to APPROVED or REJECTED.
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderApproved OrderStatus = "APPROVED"
	OrderRejected OrderStatus = "REJECTED"
)

// OrderLine is one item of an order with its price snapshot.
type OrderLine struct {
	ItemName  string  `json:"item_name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Variant   string  `json:"variant,omitempty"`
}

// MerchOrder is a participant's request to buy merch, approved or rejected by the organizer.
type MerchOrder struct {
	ID              uuid.UUID   `json:"id"`
	OrderID         string      `json:"order_id"`
	EventID         uuid.UUID   `json:"event_id"`
	ParticipantID   uuid.UUID   `json:"participant_id"`
	Items           []OrderLine `json:"items"`
	TotalAmount     float64     `json:"total_amount"`
	Status          OrderStatus `json:"status"`
	PaymentProofURL string      `json:"payment_proof_url"`
	TicketID        *string     `json:"ticket_id,omitempty"`
	Comment         string      `json:"comment,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Quantities sums line quantities per item name.
func (o *MerchOrder) Quantities() map[string]int {
	q := make(map[string]int, len(o.Items))
	for _, l := range o.Items {
		q[l.ItemName] += l.Quantity
	}
	return q
}
