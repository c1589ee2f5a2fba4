// Package apperror provides domain-specific error types for LeadTS.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to appropriate HTTP responses automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 409, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "duplicate_field_key").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthorized",
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "validation_error",
		Message: message,
	}
}

// --- Domain error constructors ---
//
// These cover the failure modes of campaign settings editing. Each has a
// distinct Type so API clients can branch on them without string-matching
// messages.

// NewDuplicateFieldKey creates a 409 error for a field key that collides with
// an existing system or custom field.
func NewDuplicateFieldKey(key string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "duplicate_field_key",
		Message: fmt.Sprintf("a field with key %q already exists", key),
	}
}

// NewInvalidFieldType creates a 422 error for a structurally invalid field
// definition, e.g. a select field with no options.
func NewInvalidFieldType(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "invalid_field_type",
		Message: message,
	}
}

// NewUnknownFieldReference creates a 422 error for an operation that names a
// field key not present (or no longer active) in the campaign schema.
func NewUnknownFieldReference(key string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "unknown_field_reference",
		Message: fmt.Sprintf("field %q is not an active field in this campaign", key),
	}
}

// NewUnknownStageReference creates a 422 error for an operation that names a
// pipeline stage id not present in the campaign.
func NewUnknownStageReference(stageID string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "unknown_stage_reference",
		Message: fmt.Sprintf("stage %q does not exist in this campaign", stageID),
	}
}

// NewStaleSettingsWrite creates a 409 error for an optimistic-concurrency
// failure: the settings were modified since the caller read them.
func NewStaleSettingsWrite() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "stale_settings_write",
		Message: "campaign settings were modified by another request, reload and retry",
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. campaign context not set, dependency not wired). Provides a
// meaningful Internal error for logging instead of nil.
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
