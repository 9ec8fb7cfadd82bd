package lifecycle

import (
	"sort"
	"strings"
	"time"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
)

var editable = map[models.Phase][]string{
	models.PhaseDraft: {
		models.PatchName, models.PatchDescription, models.PatchType, models.PatchEligibility,
		models.PatchStartDate, models.PatchEndDate, models.PatchRegistrationDeadline,
		models.PatchRegistrationLimit, models.PatchRegistrationFee, models.PatchTags,
	},
	models.PhasePublished: {
		models.PatchDescription, models.PatchRegistrationDeadline,
		models.PatchRegistrationLimit, models.PatchStatusOverride,
	},
	models.PhaseOngoing:   {models.PatchStatusOverride},
	models.PhaseCompleted: {models.PatchStatusOverride},
	models.PhaseClosed:    {models.PatchStatusOverride},
	models.PhaseCancelled: {models.PatchStatusOverride},
}

// EditableFields returns the patch fields allowed in phase p.
func EditableFields(p models.Phase) []string {
	out := append([]string(nil), editable[p]...)
	sort.Strings(out)
	return out
}

// CheckPatch rejects the whole patch if any present field is not editable in phase p or
// carries an invalid value.
func CheckPatch(p models.Phase, patch models.EventPatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return apperr.Validation(apperr.CodeEmptyPatch, "no fields to update")
	}

	allowed := make(map[string]bool, len(editable[p]))
	for _, f := range editable[p] {
		allowed[f] = true
	}
	var denied []string
	for _, f := range fields {
		if !allowed[f] {
			denied = append(denied, f)
		}
	}
	if len(denied) > 0 {
		return apperr.Validation(apperr.CodeFieldNotEditable,
			"fields not editable while %s: %s", p, strings.Join(denied, ", "))
	}
	return checkValues(patch)
}

func checkValues(patch models.EventPatch) error {
	invalid := func(format string, args ...any) error {
		return apperr.Validation(apperr.CodeInvalidInput, format, args...)
	}
	if patch.Name.Set && strings.TrimSpace(patch.Name.Value) == "" {
		return invalid("name cannot be empty")
	}
	if patch.Type.Set && !patch.Type.Value.Valid() {
		return invalid("invalid event type %q", patch.Type.Value)
	}
	if patch.Eligibility.Set && !patch.Eligibility.Value.Valid() {
		return invalid("invalid eligibility %q", patch.Eligibility.Value)
	}
	if patch.RegistrationLimit.Set && !patch.RegistrationLimit.Null && patch.RegistrationLimit.Value <= 0 {
		return invalid("registration_limit must be positive")
	}
	if patch.RegistrationFee.Set && patch.RegistrationFee.Value < 0 {
		return invalid("registration_fee cannot be negative")
	}
	if patch.StatusOverride.Set && !patch.StatusOverride.Null && !patch.StatusOverride.Value.ValidOverride() {
		return invalid("invalid status_override %q", patch.StatusOverride.Value)
	}
	return nil
}

// CheckPublish validates that a Draft event has a coherent schedule.
func CheckPublish(e models.Event, now time.Time) error {
	if p := Resolve(e, now); p != models.PhaseDraft {
		return apperr.Validation(apperr.CodeEventNotDraft, "only draft events can be published (status %s)", p)
	}
	var missing []string
	if e.StartDate == nil {
		missing = append(missing, models.PatchStartDate)
	}
	if e.EndDate == nil {
		missing = append(missing, models.PatchEndDate)
	}
	if e.RegistrationDeadline == nil {
		missing = append(missing, models.PatchRegistrationDeadline)
	}
	if len(missing) > 0 {
		return apperr.Validation(apperr.CodePublishInvalid, "missing required fields: %s", strings.Join(missing, ", "))
	}
	if !e.EndDate.After(*e.StartDate) {
		return apperr.Validation(apperr.CodePublishInvalid, "end_date must be after start_date")
	}
	if e.RegistrationDeadline.After(*e.StartDate) {
		return apperr.Validation(apperr.CodePublishInvalid, "registration_deadline must not be after start_date")
	}
	return nil
}
