package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same type and message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail returns a copy of the error carrying an extra detail.
// Sentinels are shared, so they are never mutated in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Not Found Errors
	ErrKeyNotFound = NewDomainError(ErrorTypeNotFound, "api key not found", nil)

	// Validation Errors
	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyPrompt     = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)
	ErrInvalidProvider = NewDomainError(ErrorTypeValidation, "invalid provider. Must be groq, deepseek, or gemini", nil)
	ErrNoUpdateFields  = NewDomainError(ErrorTypeValidation, "no valid update fields provided", nil)

	// Authorization Errors
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "invalid password", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	// Configuration Errors
	ErrNoProvidersConfigured = NewDomainError(ErrorTypeConfiguration, "no AI providers configured", nil)
	ErrAdminNotConfigured    = NewDomainError(ErrorTypeConfiguration, "admin password not configured on server", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// External Provider Errors
	ErrProviderTimeout = NewDomainError(ErrorTypeExternal, "LLM provider timeout", nil)
	ErrProviderError   = NewDomainError(ErrorTypeExternal, "LLM provider error", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool { return hasType(err, ErrorTypeRateLimit) }

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool { return hasType(err, ErrorTypeConfiguration) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
