// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodeLedgerWriteFailure = "LEDGER_WRITE_FAILURE"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidQuantity = "INVALID_QUANTITY"

	// Business rule violations (422)
	CodeIncompleteCount = "INCOMPLETE_COUNT"

	// Authorization errors (401, 403)
	CodeUnauthorized     = "UNAUTHORIZED"
	CodePermissionDenied = "PERMISSION_DENIED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict        = "CONFLICT"
	CodeSessionClosed   = "SESSION_CLOSED"
	CodeCloseInProgress = "CLOSE_IN_PROGRESS"
	CodeIdempotency     = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the service.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (missing products, posted counts, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidQuantity rejects a quantity before anything is written (400).
func NewInvalidQuantity(message string, quantity int64) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"quantity": quantity},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewIncompleteCount lists every product still lacking a count (422).
func NewIncompleteCount(missing []string) *AppError {
	return &AppError{
		Code:       CodeIncompleteCount,
		Message:    fmt.Sprintf("%d product(s) have not been counted", len(missing)),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"missing_product_ids": missing,
			"missing_count":       len(missing),
		},
	}
}

// NewSessionClosed is returned when a finalized session is mutated (409).
func NewSessionClosed(sessionID any) *AppError {
	return &AppError{
		Code:       CodeSessionClosed,
		Message:    "Count session is finalized",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"session_id": sessionID},
	}
}

// NewCloseInProgress is returned when another close holds the session (409).
func NewCloseInProgress(sessionID any) *AppError {
	return &AppError{
		Code:       CodeCloseInProgress,
		Message:    "Count session is being closed by another request",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"session_id": sessionID},
	}
}

// NewLedgerWriteFailure reports a reconciliation that stopped part-way (502).
// Adjustments already posted stand; the close must be retried.
func NewLedgerWriteFailure(posted, total int, err error) *AppError {
	return &AppError{
		Code:       CodeLedgerWriteFailure,
		Message:    fmt.Sprintf("Ledger write failed after %d of %d adjustments; retry the close", posted, total),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"posted": posted, "total": total},
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewPermissionDenied creates an authorization error (403)
func NewPermissionDenied(capability string, storeID any) *AppError {
	return &AppError{
		Code:       CodePermissionDenied,
		Message:    fmt.Sprintf("capability %s required", capability),
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"capability": capability, "store_id": storeID},
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsSessionClosed checks if error is CodeSessionClosed
func IsSessionClosed(err error) bool { return HasCode(err, CodeSessionClosed) }

// IsIncompleteCount checks if error is CodeIncompleteCount
func IsIncompleteCount(err error) bool { return HasCode(err, CodeIncompleteCount) }

// IsInvalidQuantity checks if error is CodeInvalidQuantity
func IsInvalidQuantity(err error) bool { return HasCode(err, CodeInvalidQuantity) }

// IsPermissionDenied checks if error is CodePermissionDenied
func IsPermissionDenied(err error) bool { return HasCode(err, CodePermissionDenied) }

// IsRetryable reports whether repeating the same request may succeed: the
// close-path failures that leave the session open, and server-side errors.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case CodeLedgerWriteFailure, CodeIncompleteCount, CodeCloseInProgress:
		return true
	}
	return appErr.HTTPStatus >= http.StatusInternalServerError
}

// IsLedgerWriteFailure checks if error is CodeLedgerWriteFailure
func IsLedgerWriteFailure(err error) bool { return HasCode(err, CodeLedgerWriteFailure) }
