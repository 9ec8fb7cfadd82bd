// Package apperr defines the error taxonomy shared by services, repositories and handlers.
// Every domain failure carries a Kind, which decides the transport status, and a stable
// machine-readable Code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindValidation
	KindUnavailable
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "internal"
}

// Machine-readable codes.
const (
	CodeInternal     = "INTERNAL"
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnauthorized = "UNAUTHORIZED"

	CodeEventNotFound        = "EVENT_NOT_FOUND"
	CodeEventNotOpen         = "EVENT_NOT_OPEN"
	CodeDeadlinePassed       = "DEADLINE_PASSED"
	CodeLimitReached         = "REGISTRATION_LIMIT_REACHED"
	CodeProfileNotFound      = "PROFILE_NOT_FOUND"
	CodeNotEligible          = "NOT_ELIGIBLE"
	CodeFieldRequired        = "FORM_FIELD_REQUIRED"
	CodeInvalidOption        = "FORM_INVALID_OPTION"
	CodeInvalidNumber        = "FORM_INVALID_NUMBER"
	CodeAlreadyRegistered    = "ALREADY_REGISTERED"
	CodeFormChanged          = "FORM_CHANGED"
	CodeRegistrationInactive = "REGISTRATION_INACTIVE"
	CodeRegistrationNotFound = "REGISTRATION_NOT_FOUND"

	CodeNotMerchEvent        = "NOT_MERCH_EVENT"
	CodeNotAcceptingOrders   = "EVENT_NOT_ACCEPTING_ORDERS"
	CodePaymentProofRequired = "PAYMENT_PROOF_REQUIRED"
	CodeItemNotFound         = "ITEM_NOT_FOUND"
	CodeInvalidVariant       = "INVALID_VARIANT"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodePerUserLimit         = "PER_USER_LIMIT_EXCEEDED"
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodeNotEventOwner        = "NOT_EVENT_OWNER"
	CodeOrderNotPending      = "ORDER_NOT_PENDING"
	CodeStockDepleted        = "STOCK_DEPLETED"

	CodeInvalidScanPayload = "INVALID_SCAN_PAYLOAD"
	CodeTicketNotFound     = "TICKET_NOT_FOUND"
	CodeAlreadyAttended    = "ALREADY_ATTENDED"

	CodeFormLocked       = "FORM_LOCKED"
	CodeInvalidForm      = "FORM_INVALID"
	CodeFieldNotEditable = "FIELD_NOT_EDITABLE"
	CodeEmptyPatch       = "EMPTY_PATCH"
	CodePublishInvalid   = "PUBLISH_INVALID"
	CodeEventNotDraft    = "EVENT_NOT_DRAFT"
	CodeEventModified    = "EVENT_MODIFIED"
	CodeQueueUnavailable = "QUEUE_UNAVAILABLE"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code so sentinels survive re-wrapping with a new message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newf(k Kind, code, format string, args ...any) *Error {
	return &Error{Kind: k, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, format string, args ...any) *Error {
	return newf(KindNotFound, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newf(KindForbidden, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newf(KindConflict, code, format, args...)
}

func Validation(code, format string, args ...any) *Error {
	return newf(KindValidation, code, format, args...)
}

func Unavailable(code, format string, args ...any) *Error {
	return newf(KindUnavailable, code, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, CodeUnauthorized, format, args...)
}

// Invalid turns an input validation failure into a Validation error.
func Invalid(err error) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: err.Error(), Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// Store-level outcomes. Repositories return these; services may refine the message.
var (
	ErrEventNotFound        = NotFound(CodeEventNotFound, "event not found")
	ErrOrderNotFound        = NotFound(CodeOrderNotFound, "order not found")
	ErrTicketNotFound       = NotFound(CodeTicketNotFound, "ticket not found")
	ErrProfileNotFound      = NotFound(CodeProfileNotFound, "participant profile not found")
	ErrRegistrationNotFound = NotFound(CodeRegistrationNotFound, "registration not found")
	ErrAlreadyRegistered    = Conflict(CodeAlreadyRegistered, "already registered for this event")
	ErrLimitReached         = Conflict(CodeLimitReached, "registration limit reached")
	ErrFormChanged          = Conflict(CodeFormChanged, "registration form changed, reload and retry")
	ErrRegistrationInactive = Conflict(CodeRegistrationInactive, "registration is not active")
	ErrAlreadyAttended      = Conflict(CodeAlreadyAttended, "ticket already checked in")
	ErrOrderNotPending      = Conflict(CodeOrderNotPending, "order is not pending")
	ErrStockDepleted        = Conflict(CodeStockDepleted, "stock depleted")
	ErrInsufficientStock    = Conflict(CodeInsufficientStock, "insufficient stock")
	ErrPerUserLimit         = Conflict(CodePerUserLimit, "per-user limit exceeded")
	ErrFormLocked           = Conflict(CodeFormLocked, "form is locked after the first registration")
	ErrNotEventOwner        = Forbidden(CodeNotEventOwner, "not the event owner")
	ErrEventNotDraft        = Validation(CodeEventNotDraft, "event is no longer a draft")
	ErrEventModified        = Conflict(CodeEventModified, "event was modified concurrently, reload and retry")
)

// KindOf returns the Kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
