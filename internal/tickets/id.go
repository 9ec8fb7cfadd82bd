// Package tickets generates ticket and order identifiers, encodes the scan payload printed
// on a ticket and resolves a ticket back to the claim that issued it.
package tickets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
)

// Identifier prefixes.
const (
	PrefixRegistration = "FEL"
	PrefixMerch        = "TKT"
	PrefixOrder        = "ORD"
)

// ErrIDTaken is returned by a store when a generated ticket or order id is already in use.
var ErrIDTaken = errors.New("generated id already in use")

// IssueAttempts bounds how often WithFreshIDs calls its write.
const IssueAttempts = 3

// WithFreshIDs calls write until it returns something other than ErrIDTaken, at most
// IssueAttempts times. write must generate new ids on every call. Running out of attempts is
// an internal error.
func WithFreshIDs(write func() error) error {
	var err error
	for i := 0; i < IssueAttempts; i++ {
		if err = write(); !errors.Is(err, ErrIDTaken) {
			return err
		}
	}
	return apperr.Internal(err)
}

// NewTicketID returns a ticket id such as FEL-M8K2J1QZ-9F3A1C. Uniqueness is enforced by
// the store; the random suffix only makes collisions unlikely.
func NewTicketID(origin models.TicketOrigin, now time.Time) string {
	prefix := PrefixRegistration
	if origin == models.OriginMerch {
		prefix = PrefixMerch
	}
	return newID(prefix, now, 3)
}

// NewOrderID returns a human readable order id such as ORD-M8K2J1QZ-4B1E07.
func NewOrderID(now time.Time) string {
	return newID(PrefixOrder, now, 3)
}

func newID(prefix string, now time.Time, randBytes int) string {
	b := make([]byte, randBytes)
	_, _ = rand.Read(b)
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return prefix + "-" + ts + "-" + strings.ToUpper(hex.EncodeToString(b))
}
