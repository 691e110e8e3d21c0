package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeInternal      = "INTERNAL_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeUnavailable   = "UNAVAILABLE"
)

var (
	// ErrRulesUnavailable means the rule set for an organization could not be loaded
	ErrRulesUnavailable = stderrors.New("notification rules unavailable")
	// ErrNoRecipients means no recipient could be resolved for any planned delivery
	ErrNoRecipients = stderrors.New("no recipients resolved")
	// ErrTransportNotConfigured is reported by dispatchers without a transport
	ErrTransportNotConfigured = stderrors.New("transport not configured")
)

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Err: err}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Err: err}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Err: err}
}

// NewConfigurationError creates an error for missing or invalid configuration
func NewConfigurationError(message string, err error) *AppError {
	return &AppError{Code: CodeConfiguration, Message: message, Err: err}
}

// NewUnavailableError creates an error for a dependency that cannot be reached
func NewUnavailableError(message string, err error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Err: err}
}

// HTTPStatus maps an error to the HTTP status a handler should answer with
func HTTPStatus(err error) int {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
