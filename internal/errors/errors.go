package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeDatabase      ErrorType = "database"
	ErrorTypeCache         ErrorType = "cache"
	ErrorTypeAuthorization ErrorType = "authorization"

	// Cycle taxonomy. Only configuration and selection failures are fatal for a run.
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeSelection     ErrorType = "selection"
	ErrorTypeProvisioning  ErrorType = "provisioning"
	ErrorTypeDispatch      ErrorType = "dispatch"
	ErrorTypeHistoryWrite  ErrorType = "history_write"
)

// AppError represents a structured application error
type AppError struct {
	Type          ErrorType              `json:"type"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
	HTTPStatus    int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToJSON converts the error to JSON format
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// IsFatal reports whether the error must abort a whole matching cycle.
func (e *AppError) IsFatal() bool {
	return e.Type == ErrorTypeConfiguration || e.Type == ErrorTypeSelection
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		HTTPStatus: getDefaultHTTPStatus(errorType),
	}
}

// NewAppErrorWithCause creates a new application error with an underlying cause
func NewAppErrorWithCause(errorType ErrorType, code, message string, cause error) *AppError {
	err := NewAppError(errorType, code, message)
	err.Cause = cause
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithCorrelationID adds a correlation ID to the error
func (e *AppError) WithCorrelationID(correlationID string) *AppError {
	e.CorrelationID = correlationID
	return e
}

// WithDetails adds additional details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func getDefaultHTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthorization:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeProvisioning, ErrorTypeDispatch, ErrorTypeHistoryWrite:
		// per-pair failures are reported inside a successful summary
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(field, message string) *AppError {
	return NewAppError(ErrorTypeValidation, "VALIDATION_ERROR", message).
		WithMetadata("field", field)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource)
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthorization, "AUTHZ_ERROR", message)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeInternal, "INTERNAL_ERROR", message, cause)
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeDatabase, "DATABASE_ERROR",
		fmt.Sprintf("Database operation failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeCache, "CACHE_ERROR",
		fmt.Sprintf("Cache operation failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

// NewExternalError creates an external service error
func NewExternalError(service, operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeExternal, "EXTERNAL_ERROR",
		fmt.Sprintf("External service error: %s", service), cause).
		WithMetadata("service", service).
		WithMetadata("operation", operation)
}

// NewConfigurationError reports missing credentials or settings.
func NewConfigurationError(setting, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, "CONFIGURATION_ERROR", message).
		WithMetadata("setting", setting)
}

// NewSelectionError reports a failed read of profiles or match history.
func NewSelectionError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeSelection, "SELECTION_ERROR",
		fmt.Sprintf("Eligibility data unavailable: %s", operation), cause).
		WithMetadata("operation", operation)
}

// NewProvisioningError reports a meeting that could not be created for a pair.
func NewProvisioningError(pairKey string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeProvisioning, "PROVISIONING_FAILED",
		"Meeting could not be provisioned", cause).
		WithMetadata("pair", pairKey)
}

// NewDispatchError reports a single notification that was not delivered.
func NewDispatchError(recipientID, message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeDispatch, "DISPATCH_FAILED", message, cause).
		WithMetadata("recipient_id", recipientID)
}

// NewHistoryWriteError reports a pairing that could not be recorded.
func NewHistoryWriteError(pairKey string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeHistoryWrite, "HISTORY_WRITE_FAILED",
		"Match history could not be recorded", cause).
		WithMetadata("pair", pairKey)
}

// IsErrorType checks if an error, or any error it wraps, is an AppError of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetErrorType returns the error type if the chain contains an AppError
func GetErrorType(err error) (ErrorType, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsFatal reports whether err should fail a whole cycle.
func IsFatal(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.IsFatal()
	}
	return false
}
