// Package capacity implements the ledger that every scarce resource is claimed through.
// A claim is accepted or rejected atomically against a total ceiling and an optional
// per-claimant ceiling; a rejected claim changes nothing.
package capacity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Reason explains a rejected claim.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonCeiling         Reason = "ceiling"
	ReasonClaimantCeiling Reason = "claimant_ceiling"
)

// Request is a claim of Units under Key by Claimant. A nil ceiling is unlimited.
type Request struct {
	Key             string
	Claimant        string
	Units           int
	Ceiling         *int
	ClaimantCeiling *int
}

// Result of a claim. The unit counts reflect the state after the decision.
type Result struct {
	Accepted      bool
	Reason        Reason
	ClaimantUnits int
	TotalUnits    int
}

// Ledger is the atomic claim store.
type Ledger interface {
	TryClaim(ctx context.Context, req Request) (Result, error)
	Release(ctx context.Context, key, claimant string, units int) error
	ClaimantUnits(ctx context.Context, key, claimant string) (int, error)
	TotalUnits(ctx context.Context, key string) (int, error)
}

// RegistrationKey is the ledger key of an event's registration slots.
func RegistrationKey(eventID uuid.UUID) string {
	return "registration:" + eventID.String()
}

// MerchKey is the ledger key of a participant's per-user quota for one merch item.
func MerchKey(eventID uuid.UUID, item string) string {
	return fmt.Sprintf("merch:%s:%s", eventID, item)
}

func validate(req Request) error {
	if req.Key == "" || req.Claimant == "" {
		return fmt.Errorf("capacity: key and claimant are required")
	}
	if req.Units <= 0 {
		return fmt.Errorf("capacity: units must be positive, got %d", req.Units)
	}
	return nil
}
