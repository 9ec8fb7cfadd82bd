// Package forms owns the per-event registration form: schema validation, the lock that
// freezes a schema after the first registration, and answer validation.
package forms

import (
	"errors"
	"math"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/felicity-events/backend/internal/apperr"
	"github.com/felicity-events/backend/internal/models"
)

var fieldTypes = []interface{}{
	models.FieldText, models.FieldTextarea, models.FieldNumber,
	models.FieldSelect, models.FieldCheckbox, models.FieldFile,
}

// MaxFields bounds the number of questions on one form.
const MaxFields = 100

// ValidateSchema checks field types, labels and options.
func ValidateSchema(fields []models.FormField) error {
	if len(fields) > MaxFields {
		return apperr.Validation(apperr.CodeInvalidForm, "a form has at most %d fields", MaxFields)
	}
	labels := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		f.Label = strings.TrimSpace(f.Label)
		err := validation.ValidateStruct(f,
			validation.Field(&f.Label, validation.Required, validation.Length(1, 200)),
			validation.Field(&f.Type, validation.Required, validation.In(fieldTypes...)),
			validation.Field(&f.Options, validation.By(optionsRule(f.Type))),
		)
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidForm, "field %d: %v", i, err)
		}
		if labels[f.Label] {
			return apperr.Validation(apperr.CodeInvalidForm, "duplicate field label %q", f.Label)
		}
		labels[f.Label] = true
	}
	return nil
}

// optionsRule requires unique, non-empty options on select fields and none elsewhere.
func optionsRule(t models.FieldType) validation.RuleFunc {
	return func(value interface{}) error {
		opts, _ := value.([]string)
		if t != models.FieldSelect {
			if len(opts) > 0 {
				return errors.New("only select fields take options")
			}
			return nil
		}
		if len(opts) == 0 {
			return errors.New("cannot be blank")
		}
		seen := make(map[string]bool, len(opts))
		for _, o := range opts {
			if strings.TrimSpace(o) == "" || seen[o] {
				return errors.New("must be non-empty and unique")
			}
			seen[o] = true
		}
		return nil
	}
}

// ValidateAnswers checks answers against fields and returns only the answers to known
// fields, trimmed.
func ValidateAnswers(fields []models.FormField, answers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(answers[f.Label])
		if v == "" {
			if f.Required {
				return nil, apperr.Validation(apperr.CodeFieldRequired, "field %q is required", f.Label)
			}
			continue
		}
		switch f.Type {
		case models.FieldSelect:
			if !contains(f.Options, v) {
				return nil, apperr.Validation(apperr.CodeInvalidOption, "invalid option for %q", f.Label)
			}
		case models.FieldNumber:
			if !isNumber(v) {
				return nil, apperr.Validation(apperr.CodeInvalidNumber, "field %q must be a number", f.Label)
			}
		case models.FieldCheckbox:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, apperr.Validation(apperr.CodeInvalidOption, "field %q must be true or false", f.Label)
			}
			if f.Required && !b {
				return nil, apperr.Validation(apperr.CodeFieldRequired, "field %q must be checked", f.Label)
			}
		}
		out[f.Label] = v
	}
	return out, nil
}

// isNumber accepts finite decimal numbers.
func isNumber(v string) bool {
	if strings.ContainsAny(v, "xX_") {
		return false
	}
	n, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsNaN(n) && !math.IsInf(n, 0)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
