package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes regular events from merchandise sales.
type EventType string

const (
	EventTypeNormal EventType = "NORMAL"
	EventTypeMerch  EventType = "MERCH"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventTypeNormal || t == EventTypeMerch
}

// Eligibility restricts which participant types may register.
type Eligibility string

const (
	EligibilityAll     Eligibility = "ALL"
	EligibilityIIIT    Eligibility = "IIIT"
	EligibilityNonIIIT Eligibility = "NON_IIIT"
)

// Valid reports whether e is a known eligibility value.
func (e Eligibility) Valid() bool {
	switch e {
	case EligibilityAll, EligibilityIIIT, EligibilityNonIIIT:
		return true
	}
	return false
}

// Allows reports whether a participant of type pt may register.
func (e Eligibility) Allows(pt ParticipantType) bool {
	return e == EligibilityAll || string(e) == string(pt)
}

// Phase is the lifecycle phase of an event. It is derived on every read and never stored,
// except when an organizer pins it through Event.StatusOverride.
type Phase string

const (
	PhaseDraft     Phase = "Draft"
	PhasePublished Phase = "Published"
	PhaseOngoing   Phase = "Ongoing"
	PhaseCompleted Phase = "Completed"
	PhaseClosed    Phase = "Closed"
	PhaseCancelled Phase = "Cancelled"
)

// ValidOverride reports whether p may be used as a status override.
func (p Phase) ValidOverride() bool {
	switch p {
	case PhasePublished, PhaseOngoing, PhaseCompleted, PhaseClosed, PhaseCancelled:
		return true
	}
	return false
}

// Event is an organizer-owned event. MerchItems is populated only for MERCH events.
type Event struct {
	ID                   uuid.UUID   `json:"id"`
	OrganizerID          uuid.UUID   `json:"organizer_id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	Type                 EventType   `json:"type"`
	Eligibility          Eligibility `json:"eligibility"`
	StartDate            *time.Time  `json:"start_date,omitempty"`
	EndDate              *time.Time  `json:"end_date,omitempty"`
	RegistrationDeadline *time.Time  `json:"registration_deadline,omitempty"`
	RegistrationLimit    *int        `json:"registration_limit,omitempty"`
	RegistrationFee      float64     `json:"registration_fee"`
	Tags                 []string    `json:"tags"`
	PublishedAt          *time.Time  `json:"published_at,omitempty"`
	StatusOverride       *Phase      `json:"status_override,omitempty"`
	MerchItems           []MerchItem `json:"merch_items,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Item returns the merch item with the given name.
func (e *Event) Item(name string) (MerchItem, bool) {
	for _, it := range e.MerchItems {
		if it.Name == name {
			return it, true
		}
	}
	return MerchItem{}, false
}

// EventView is an Event with its phase resolved at read time.
type EventView struct {
	Event
	Status Phase `json:"status"`
}

// EventPatch is a partial update. Only fields that were present in the request are Set.
type EventPatch struct {
	Name                 Optional[string]      `json:"name"`
	Description          Optional[string]      `json:"description"`
	Type                 Optional[EventType]   `json:"type"`
	Eligibility          Optional[Eligibility] `json:"eligibility"`
	StartDate            Optional[time.Time]   `json:"start_date"`
	EndDate              Optional[time.Time]   `json:"end_date"`
	RegistrationDeadline Optional[time.Time]   `json:"registration_deadline"`
	RegistrationLimit    Optional[int]         `json:"registration_limit"`
	RegistrationFee      Optional[float64]     `json:"registration_fee"`
	Tags                 Optional[[]string]    `json:"tags"`
	StatusOverride       Optional[Phase]       `json:"status_override"`
}

// Patch field names, as they appear on the wire.
const (
	PatchName                 = "name"
	PatchDescription          = "description"
	PatchType                 = "type"
	PatchEligibility          = "eligibility"
	PatchStartDate            = "start_date"
	PatchEndDate              = "end_date"
	PatchRegistrationDeadline = "registration_deadline"
	PatchRegistrationLimit    = "registration_limit"
	PatchRegistrationFee      = "registration_fee"
	PatchTags                 = "tags"
	PatchStatusOverride       = "status_override"
)

// Fields lists the wire names of every field present in the patch.
func (p EventPatch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Name.Set, PatchName)
	add(p.Description.Set, PatchDescription)
	add(p.Type.Set, PatchType)
	add(p.Eligibility.Set, PatchEligibility)
	add(p.StartDate.Set, PatchStartDate)
	add(p.EndDate.Set, PatchEndDate)
	add(p.RegistrationDeadline.Set, PatchRegistrationDeadline)
	add(p.RegistrationLimit.Set, PatchRegistrationLimit)
	add(p.RegistrationFee.Set, PatchRegistrationFee)
	add(p.Tags.Set, PatchTags)
	add(p.StatusOverride.Set, PatchStatusOverride)
	return out
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e Event) Event {
	if p.Name.Set {
		e.Name = p.Name.Value
	}
	if p.Description.Set {
		e.Description = p.Description.Value
	}
	if p.Type.Set {
		e.Type = p.Type.Value
	}
	if p.Eligibility.Set {
		e.Eligibility = p.Eligibility.Value
	}
	if p.StartDate.Set {
		e.StartDate = p.StartDate.Ptr()
	}
	if p.EndDate.Set {
		e.EndDate = p.EndDate.Ptr()
	}
	if p.RegistrationDeadline.Set {
		e.RegistrationDeadline = p.RegistrationDeadline.Ptr()
	}
	if p.RegistrationLimit.Set {
		e.RegistrationLimit = p.RegistrationLimit.Ptr()
	}
	if p.RegistrationFee.Set {
		e.RegistrationFee = p.RegistrationFee.Value
	}
	if p.Tags.Set {
		e.Tags = p.Tags.Value
	}
	if p.StatusOverride.Set {
		e.StatusOverride = p.StatusOverride.Ptr()
	}
	return e
}
