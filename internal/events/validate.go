package events

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
)

// ValidateMerchItems checks item names are unique and amounts are non-negative.
func ValidateMerchItems(items []models.MerchItem) error {
	seen := make(map[string]bool, len(items))
	for i := range items {
		it := &items[i]
		it.Name = strings.TrimSpace(it.Name)
		err := validation.ValidateStruct(it,
			validation.Field(&it.Name, validation.Required, validation.Length(1, 100)),
			validation.Field(&it.Price, validation.Min(0.0)),
			validation.Field(&it.StockQty, validation.Min(0)),
			validation.Field(&it.PerUserLimit, validation.Min(0)),
		)
		if err != nil {
			return apperr.Invalid(fmt.Errorf("merch item %d: %w", i, err))
		}
		if seen[it.Name] {
			return apperr.Validation(apperr.CodeInvalidInput, "duplicate merch item %q", it.Name)
		}
		seen[it.Name] = true
		variants := make(map[string]bool, len(it.Variants))
		for _, v := range it.Variants {
			if strings.TrimSpace(v) == "" || variants[v] {
				return apperr.Validation(apperr.CodeInvalidInput, "merch item %q has an empty or duplicate variant", it.Name)
			}
			variants[v] = true
		}
	}
	return nil
}
