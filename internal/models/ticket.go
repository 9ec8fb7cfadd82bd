package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketOrigin tags which workflow issued a ticket.
type TicketOrigin string

const (
	OriginRegistration TicketOrigin = "REGISTRATION"
	OriginMerch        TicketOrigin = "MERCH"
)

// Ticket is the proof of claim issued once per registration or approved order.
type Ticket struct {
	TicketID       string       `json:"ticket_id"`
	EventID        uuid.UUID    `json:"event_id"`
	ParticipantID  uuid.UUID    `json:"participant_id"`
	Origin         TicketOrigin `json:"origin"`
	RegistrationID *uuid.UUID   `json:"registration_id,omitempty"`
	OrderID        *uuid.UUID   `json:"order_id,omitempty"`
	Payload        string       `json:"payload"`
	CreatedAt      time.Time    `json:"created_at"`
}

// AttendanceMethod records how a check-in was captured.
type AttendanceMethod string

const (
	MethodScan   AttendanceMethod = "SCAN"
	MethodManual AttendanceMethod = "MANUAL"
)

// AttendanceRecord is unique per (event, ticket) and never updated.
type AttendanceRecord struct {
	ID            uuid.UUID        `json:"id"`
	EventID       uuid.UUID        `json:"event_id"`
	TicketID      string           `json:"ticket_id"`
	ParticipantID uuid.UUID        `json:"participant_id"`
	Origin        TicketOrigin     `json:"origin"`
	Method        AttendanceMethod `json:"method"`
	Override      bool             `json:"override"`
	Note          string           `json:"note,omitempty"`
	ScannedBy     uuid.UUID        `json:"scanned_by"`
	ScannedAt     time.Time        `json:"scanned_at"`
}

// AttendanceSummary is a read-only projection over tickets and attendance.
type AttendanceSummary struct {
	EventID      uuid.UUID `json:"event_id"`
	TotalTickets int       `json:"total_tickets"`
	Attended     int       `json:"attended"`
	NotAttended  int       `json:"not_attended"`
}

// TicketLineage is a ticket together with whether the claim that issued it still stands:
// the registration is active or the order is approved.
type TicketLineage struct {
	Ticket Ticket
	Active bool
}
