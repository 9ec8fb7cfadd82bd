package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus of a participant's registration.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationCancelled  RegistrationStatus = "cancelled"
	RegistrationRejected   RegistrationStatus = "rejected"
)

// Registration is unique per (event, participant).
type Registration struct {
	ID            uuid.UUID          `json:"id"`
	EventID       uuid.UUID          `json:"event_id"`
	ParticipantID uuid.UUID          `json:"participant_id"`
	TicketID      string             `json:"ticket_id"`
	Status        RegistrationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// FormResponse holds the answers a participant submitted with a registration.
type FormResponse struct {
	EventID       uuid.UUID         `json:"event_id"`
	ParticipantID uuid.UUID         `json:"participant_id"`
	Answers       map[string]string `json:"answers"`
	CreatedAt     time.Time         `json:"created_at"`
}
