package apierrors

import (
	"errors"
	"fmt"
)

// Code identifies the business error category. Codes are stable and safe to
// expose to API clients.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeForbidden        Code = "FORBIDDEN"
	CodeAlreadyProcessed Code = "ALREADY_PROCESSED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Error is a business error with a stable code, a human-readable message and
// optional structured details. Infrastructure failures are wrapped separately
// and surfaced to callers as CodeInternal with a generic message.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewValidation reports malformed or business-incorrect input.
func NewValidation(message string, details map[string]interface{}) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// NewNotFound reports a missing entity.
func NewNotFound(entity string, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s no encontrado", entity),
		Details: map[string]interface{}{"entity": entity, "id": id},
	}
}

// NewConflict reports an illegal state transition or a duplicate operation.
func NewConflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// NewForbidden reports a role or ownership mismatch.
func NewForbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// NewAlreadyProcessed reports a second resolution attempt over an entity that
// already transitioned out of its pending state.
func NewAlreadyProcessed(entity string, id string) *Error {
	return &Error{
		Code:    CodeAlreadyProcessed,
		Message: fmt.Sprintf("%s ya fue procesado", entity),
		Details: map[string]interface{}{"entity": entity, "id": id},
	}
}

// NewInternal masks an infrastructure failure behind a generic message. The
// cause stays attached for server-side logging but is never serialized.
func NewInternal(cause error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: "error interno del servidor",
		cause:   cause,
	}
}

// As extracts an *Error from err, following wrapped chains.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given business code.
func IsCode(err error, code Code) bool {
	if apiErr, ok := As(err); ok {
		return apiErr.Code == code
	}
	return false
}

// IsBusiness reports whether err is a business error (any code except
// CodeInternal). Business errors abort the enclosing transaction but are
// safe to return verbatim to the caller.
func IsBusiness(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code != CodeInternal
}
