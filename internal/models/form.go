package models

import (
	"time"

	"github.com/google/uuid"
)

// FieldType of a dynamic registration form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
)

// FormField is one organizer-defined question.
type FormField struct {
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// FormSchema is the per-event registration form. Version increments on every write so a
// registration can detect that the schema it validated against has changed.
type FormSchema struct {
	EventID   uuid.UUID   `json:"event_id"`
	Fields    []FormField `json:"fields"`
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FormView is what readers see: the schema plus whether it is locked.
type FormView struct {
	Fields  []FormField `json:"fields"`
	Version int         `json:"version"`
	Locked  bool        `json:"locked"`
}
