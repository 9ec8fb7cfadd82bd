package models

import (
	"github.com/google/uuid"
)

// Role represents user role in the platform.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
)

// ParticipantType decides event eligibility.
type ParticipantType string

const (
	ParticipantIIIT    ParticipantType = "IIIT"
	ParticipantNonIIIT ParticipantType = "NON_IIIT"
)

// ParticipantProfile is the collaborator view of a participant account.
type ParticipantProfile struct {
	UserID          uuid.UUID       `json:"user_id"`
	Email           string          `json:"email"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	ParticipantType ParticipantType `json:"participant_type"`
}

// DisplayName returns "First Last" trimmed of a missing part.
func (p ParticipantProfile) DisplayName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
