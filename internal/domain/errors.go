package domain

import (
	"fmt"
	"time"
)

// GuardrailError represents a standardized error response
type GuardrailError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *GuardrailError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrValidation     = "VALIDATION_ERROR"
	ErrAuthorization  = "AUTHORIZATION_ERROR"
	ErrAuditWrite     = "AUDIT_WRITE_ERROR"
	ErrReference      = "REFERENCE_ERROR"
	ErrStorage        = "STORAGE_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// AuditWriteError wraps a ledger failure. A decision whose audit record
// failed to persist must not be returned to the caller.
type AuditWriteError struct {
	Action string
	Err    error
}

// Error implements the error interface
func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write for %s failed: %v", e.Action, e.Err)
}

// Unwrap returns the underlying ledger error
func (e *AuditWriteError) Unwrap() error {
	return e.Err
}

// NewGuardrailError creates a new GuardrailError with timestamp
func NewGuardrailError(code, message, details, requestID string) *GuardrailError {
	return &GuardrailError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
