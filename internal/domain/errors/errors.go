package errors

import (
	"errors"
	"fmt"
)

// ErrorType partitions errors into the screening error taxonomy
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeCompliance ErrorType = "compliance_violation"
	ErrorTypeProvider   ErrorType = "provider"
	ErrorTypeSystem     ErrorType = "system"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
)

// AppError represents a structured application error
type AppError struct {
	Type          ErrorType              `json:"type"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Cause         error                  `json:"-"`
	Retryable     bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithCorrelation stamps the request correlation ID onto the error
func (e *AppError) WithCorrelation(correlationID string) *AppError {
	e.CorrelationID = correlationID
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

func NewPermissionError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypePermission,
		Code:      "PERMISSION_DENIED",
		Message:   message,
		Retryable: false,
	}
}

func NewComplianceError(checkType, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeCompliance,
		Code:      "COMPLIANCE_VIOLATION",
		Message:   message,
		Retryable: false,
		Details:   map[string]interface{}{"check_type": checkType},
	}
}

func NewProviderError(providerID, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeProvider,
		Code:      "PROVIDER_ERROR",
		Message:   fmt.Sprintf("provider %s: %s", providerID, message),
		Retryable: true,
		Details:   map[string]interface{}{"provider_id": providerID},
	}
}

func NewSystemError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeSystem,
		Code:      "SYSTEM_ERROR",
		Message:   message,
		Retryable: true,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConflict,
		Code:      "CONFLICT",
		Message:   message,
		Retryable: false,
	}
}

// Predefined common errors
var (
	ErrScreeningNotFound  = NewNotFoundError("screening")
	ErrEntityNotFound     = NewNotFoundError("entity")
	ErrProfileNotFound    = NewNotFoundError("profile")
	ErrConsentMissing     = NewValidationError("CONSENT_MISSING", "screening requires a consent reference")
	ErrTierDegreeMismatch = NewValidationError("TIER_DEGREE_MISMATCH", "degree D3 requires the Enhanced tier")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// CorrelationID extracts the correlation ID carried by an error, if any
func CorrelationID(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CorrelationID
	}
	return ""
}
