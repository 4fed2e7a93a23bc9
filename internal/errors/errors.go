// Package errors provides custom error types for the market simulation API.
// All service-layer errors should use AppError so that clients always get a
// stable code and message and internal details never leak.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrInsufficientPosition) matches wrapped copies too.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Operator pipeline errors.
var (
	ErrPipelineNotConfigured = &AppError{Code: "PIPELINE_NOT_CONFIGURED", Message: "Pipeline endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
	ErrInvalidAPIKey         = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
)

// Instrument registry errors.
var (
	ErrInstrumentNotFound  = &AppError{Code: "INSTRUMENT_NOT_FOUND", Message: "Instrument not found", StatusCode: http.StatusNotFound}
	ErrInstrumentInactive  = &AppError{Code: "INSTRUMENT_INACTIVE", Message: "Instrument is not open for trading", StatusCode: http.StatusBadRequest}
	ErrDuplicateInstrument = &AppError{Code: "DUPLICATE_INSTRUMENT", Message: "An instrument with this symbol already exists", StatusCode: http.StatusConflict}
)

// Order execution errors.
var (
	ErrInvalidQuantity        = &AppError{Code: "INVALID_QUANTITY", Message: "Quantity must be a positive integer", StatusCode: http.StatusBadRequest}
	ErrInvalidLimitPrice      = &AppError{Code: "INVALID_LIMIT_PRICE", Message: "Limit orders require a positive limit price", StatusCode: http.StatusBadRequest}
	ErrInsufficientPosition   = &AppError{Code: "INSUFFICIENT_POSITION", Message: "Insufficient position for this sale", StatusCode: http.StatusBadRequest}
	ErrConcurrentModification = &AppError{Code: "CONCURRENT_MODIFICATION", Message: "Position was modified concurrently, retry the order", StatusCode: http.StatusConflict}
)

// Position ledger errors.
var (
	ErrPositionNotFound = &AppError{Code: "POSITION_NOT_FOUND", Message: "No position held for this instrument", StatusCode: http.StatusNotFound}
)
