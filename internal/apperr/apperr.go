// Package apperr defines the error taxonomy shared by the money-movement
// services. Every failure surfaced to a caller carries a Kind plus the
// detail needed to act on it (offending field, current lifecycle state).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for status mapping and client handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvalidStateTransition
	KindInsufficientBalance
	KindDuplicateCode
	KindExternalGateway
	KindConflict
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindInvalidStateTransition:
		return "invalid_state_transition"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindDuplicateCode:
		return "duplicate_code"
	case KindExternalGateway:
		return "external_gateway_failure"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Error is the taxonomy error. Field names the offending input when the
// failure is a validation problem; CurrentState carries the entity's state
// when a lifecycle transition is refused, so callers can refresh without a
// second read.
type Error struct {
	Kind         Kind
	Message      string
	Field        string
	CurrentState string
	err          error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Is matches errors of the same Kind, so callers can test with sentinel
// instances (errors.Is(err, apperr.ErrInsufficientBalance)).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinel instances for errors.Is checks.
var (
	ErrValidation             = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition, Message: "invalid state transition"}
	ErrInsufficientBalance    = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	ErrDuplicateCode          = &Error{Kind: KindDuplicateCode, Message: "duplicate code"}
	ErrExternalGateway        = &Error{Kind: KindExternalGateway, Message: "external gateway failure"}
	ErrConflict               = &Error{Kind: KindConflict, Message: "conflict"}
)

// Validation builds a field-level validation error.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a refused lifecycle transition with the state the
// entity is actually in.
func InvalidTransition(current, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidStateTransition, CurrentState: current, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalance reports a debit exceeding the available balance.
func InsufficientBalance(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientBalance, Message: fmt.Sprintf(format, args...)}
}

// DuplicateCode reports a uniqueness collision on a business code.
func DuplicateCode(format string, args ...any) *Error {
	return &Error{Kind: KindDuplicateCode, Message: fmt.Sprintf(format, args...)}
}

// Gateway wraps a payment-gateway failure. The ledger treats these as
// fail-closed: no credit was or will be applied.
func Gateway(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternalGateway, Message: fmt.Sprintf(format, args...), err: err}
}

// Conflict reports an idempotency replay or concurrent-update collision.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error to the HTTP status returned by handlers. Unknown
// errors map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation, KindInsufficientBalance:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidStateTransition:
		return http.StatusUnprocessableEntity
	case KindDuplicateCode, KindConflict:
		return http.StatusConflict
	case KindExternalGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind, KindUnknown if the error is not from the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
