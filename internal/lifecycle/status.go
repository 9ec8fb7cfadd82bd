// Package lifecycle derives an event's phase from its dates and decides which mutations the
// phase allows.
package lifecycle

import (
	"time"

	"github.com/felicity-events/backend/internal/models"
)

// Clock returns the current time. Services own one so tests can move time.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now().UTC() }

// Resolve returns the phase of e at now. It is evaluated on every read and never stored.
func Resolve(e models.Event, now time.Time) models.Phase {
	if e.StatusOverride != nil {
		return *e.StatusOverride
	}
	if e.PublishedAt == nil {
		return models.PhaseDraft
	}
	if e.StartDate == nil || now.Before(*e.StartDate) {
		return models.PhasePublished
	}
	if e.EndDate == nil || !now.After(*e.EndDate) {
		return models.PhaseOngoing
	}
	return models.PhaseCompleted
}

// View attaches the resolved phase to e.
func View(e models.Event, now time.Time) models.EventView {
	return models.EventView{Event: e, Status: Resolve(e, now)}
}

// AcceptsOrders reports whether merch orders may be placed in phase p.
func AcceptsOrders(p models.Phase) bool {
	return p == models.PhasePublished || p == models.PhaseOngoing
}
