package server

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for server operations
const (
	ErrTypeHTTP        = "http_error"
	ErrTypeConfig      = "config_error"
	ErrTypeDatabase    = "database_error"
	ErrTypeUnavailable = "unavailable_error"
	ErrTypeJob         = "job_error"
	ErrTypeInternal    = "internal_error"
)

// ServerError represents a structured error
type ServerError struct {
	Type       string // Error type category
	Message    string // Human-readable message
	Op         string // Operation name
	StatusCode int    // HTTP status code
	Err        error  // Original error
}

// Error implements error interface
func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Type, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the wrapped error
func (e *ServerError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates an HTTP error
func NewHTTPError(op string, message string, statusCode int, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeHTTP,
		Message:    message,
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:    ErrTypeConfig,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeDatabase,
		Message:    message,
		Op:         op,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnavailableError reports a dependency that is not ready yet.
func NewUnavailableError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeUnavailable,
		Message:    message,
		Op:         op,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewJobError creates a cron job error
func NewJobError(op string, message string, statusCode int, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeJob,
		Message:    message,
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(op string, message string, err error) *ServerError {
	return &ServerError{
		Type:       ErrTypeInternal,
		Message:    message,
		Op:         op,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsErrorType checks if err or any error it wraps is a ServerError of errorType
func IsErrorType(err error, errorType string) bool {
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Type == errorType
	}
	return false
}

// IsUnavailableError checks if error is an unavailable error
func IsUnavailableError(err error) bool {
	return IsErrorType(err, ErrTypeUnavailable)
}

// IsConfigError checks if error is a config error
func IsConfigError(err error) bool {
	return IsErrorType(err, ErrTypeConfig)
}

// IsInternalError checks if error is an internal error
func IsInternalError(err error) bool {
	return IsErrorType(err, ErrTypeInternal)
}
