package notify

import (
	"fmt"
	"html"

	"github.com/felicity-events/backend/internal/models"
)

// RegistrationConfirmed is sent after a registration commits.
func RegistrationConfirmed(p models.ParticipantProfile, e models.Event, ticketID string) Message {
	id := e.ID
	return Message{
		Kind:      models.NotificationRegistrationConfirmed,
		EventID:   &id,
		Recipient: p.Email,
		Subject:   "Registration confirmed: " + e.Name,
		BodyHTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>You are registered for <b>%s</b>.</p><p>Ticket ID: <code>%s</code></p>"+
				"<p>Present this Ticket ID or QR code at the venue.</p>",
			html.EscapeString(p.DisplayName()), html.EscapeString(e.Name), html.EscapeString(ticketID)),
	}
}

// OrderApproved is sent after an order is approved and its ticket issued.
func OrderApproved(p models.ParticipantProfile, e models.Event, o models.MerchOrder) Message {
	id := e.ID
	ticket := ""
	if o.TicketID != nil {
		ticket = *o.TicketID
	}
	return Message{
		Kind:      models.NotificationOrderApproved,
		EventID:   &id,
		Recipient: p.Email,
		Subject:   "Order approved: " + o.OrderID,
		BodyHTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your order <b>%s</b> for <b>%s</b> was approved (total %.2f).</p>"+
				"<p>Pickup ticket: <code>%s</code></p>",
			html.EscapeString(p.DisplayName()), html.EscapeString(o.OrderID), html.EscapeString(e.Name),
			o.TotalAmount, html.EscapeString(ticket)),
	}
}

// OrderRejected is sent after an order is rejected.
func OrderRejected(p models.ParticipantProfile, e models.Event, o models.MerchOrder) Message {
	id := e.ID
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your order <b>%s</b> for <b>%s</b> was rejected.</p>",
		html.EscapeString(p.DisplayName()), html.EscapeString(o.OrderID), html.EscapeString(e.Name))
	if o.Comment != "" {
		body += "<p>Reason: " + html.EscapeString(o.Comment) + "</p>"
	}
	return Message{
		Kind:      models.NotificationOrderRejected,
		EventID:   &id,
		Recipient: p.Email,
		Subject:   "Order rejected: " + o.OrderID,
		BodyHTML:  body,
	}
}
