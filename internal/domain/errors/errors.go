package errors

import (
	"net/http"

	"github.com/pkg/errors"
)

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	Status() int       // Status code reported in the error envelope
	ErrorCode() string // Business error code
	Message() string   // Caller-facing error message
	Details() string   // Detailed error information (optional)
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	status    int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error
func NewBaseError(status int, errorCode, message, details string) *BaseError {
	return &BaseError{
		status:    status,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	return e.message
}

// WrapMessage wraps the error with additional context message
func (e *BaseError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

// Status returns the envelope status code
func (e *BaseError) Status() int {
	return e.status
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the caller-facing error message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information
func (e *BaseError) Details() string {
	return e.details
}

// WithDetails returns a copy of the error carrying details.
// The copy still matches the original with errors.Is.
func (e *BaseError) WithDetails(details string) *BaseError {
	return &BaseError{
		status:    e.status,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Is reports whether target is the same predefined error, ignoring details.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}

	return e.errorCode == t.errorCode
}

// Predefined error types
var (
	ErrDuplicateUser = NewBaseError(
		http.StatusBadRequest,
		"USER_ALREADY_EXISTS",
		"User already exists",
		"",
	)

	// Unknown email and wrong password share this error so callers cannot tell them apart.
	ErrInvalidCredentials = NewBaseError(
		http.StatusBadRequest,
		"INVALID_CREDENTIALS",
		"User/Password not valid",
		"",
	)

	ErrInvalidToken = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_TOKEN",
		"Invalid token",
		"",
	)

	ErrValidationFailed = NewBaseError(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Validation failed",
		"",
	)

	ErrNoHandler = NewBaseError(
		http.StatusNotFound,
		"NO_HANDLER",
		"There is no matching message handler",
		"",
	)
)

// InternalError reports an unexpected store, hashing or signing failure.
type InternalError struct {
	err     error
	details string
}

// NewInternalError wraps an infrastructure failure
func NewInternalError(err error, details string) AppError {
	return &InternalError{
		err:     err,
		details: details,
	}
}

// Error implements the error interface
func (e *InternalError) Error() string {
	return errors.Wrap(e.err, e.details).Error()
}

// Unwrap exposes the underlying failure
func (e *InternalError) Unwrap() error {
	return e.err
}

// Status returns the envelope status code.
// Infrastructure failures are reported as 400, matching what callers have always received.
func (e *InternalError) Status() int {
	return http.StatusBadRequest
}

// ErrorCode returns the business error code
func (e *InternalError) ErrorCode() string {
	return "INTERNAL_ERROR"
}

// Message returns the underlying failure message
func (e *InternalError) Message() string {
	return errors.Cause(e.err).Error()
}

// Details returns detailed error information
func (e *InternalError) Details() string {
	return e.details
}
