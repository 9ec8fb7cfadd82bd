package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	NotificationRegistrationConfirmed = "registration_confirmed"
	NotificationOrderApproved         = "order_approved"
	NotificationOrderRejected         = "order_rejected"
)

// Delivery statuses.
const (
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// NotificationLog records the outcome of one delivery attempt sequence.
type NotificationLog struct {
	ID           uuid.UUID  `json:"id"`
	EventID      *uuid.UUID `json:"event_id,omitempty"`
	Kind         string     `json:"kind"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
