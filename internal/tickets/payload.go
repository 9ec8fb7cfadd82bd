package tickets

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
)

// Payload is the JSON object encoded in a ticket's QR code.
type Payload struct {
	TicketID      string              `json:"ticketId"`
	EventID       string              `json:"eventId,omitempty"`
	ParticipantID string              `json:"participantId,omitempty"`
	Origin        models.TicketOrigin `json:"origin,omitempty"`
}

// EncodePayload serializes the scan payload of t.
func EncodePayload(t models.Ticket) string {
	raw, _ := json.Marshal(Payload{
		TicketID:      t.TicketID,
		EventID:       t.EventID.String(),
		ParticipantID: t.ParticipantID.String(),
		Origin:        t.Origin,
	})
	return string(raw)
}

// ParsePayload decodes a scanned payload. It must be a JSON object with a ticketId; an
// eventId, when present, must be a UUID.
func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return Payload{}, apperr.Validation(apperr.CodeInvalidScanPayload, "invalid scan payload")
	}
	p.TicketID = strings.TrimSpace(p.TicketID)
	if p.TicketID == "" {
		return Payload{}, apperr.Validation(apperr.CodeInvalidScanPayload, "scan payload has no ticketId")
	}
	if p.EventID != "" {
		if _, err := uuid.Parse(p.EventID); err != nil {
			return Payload{}, apperr.Validation(apperr.CodeInvalidScanPayload, "scan payload has an invalid eventId")
		}
	}
	return p, nil
}

// ForEvent reports whether the payload may be checked in at eventID. A payload without an
// eventId is resolved by ticket lookup alone.
func (p Payload) ForEvent(eventID uuid.UUID) bool {
	return p.EventID == "" || strings.EqualFold(p.EventID, eventID.String())
}

// New builds a ticket with its payload filled in.
func New(origin models.TicketOrigin, eventID, participantID uuid.UUID, now time.Time) models.Ticket {
	t := models.Ticket{
		TicketID:      NewTicketID(origin, now),
		EventID:       eventID,
		ParticipantID: participantID,
		Origin:        origin,
		CreatedAt:     now,
	}
	t.Payload = EncodePayload(t)
	return t
}
