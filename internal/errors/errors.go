// Package errors provides structured error handling for promgate
// operations. It defines error codes, error types, and utilities for
// creating and classifying errors with context.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Exposition errors.
	CodeRegistryUnavailable ErrorCode = "REGISTRY_UNAVAILABLE"
	CodeMalformedFamily     ErrorCode = "MALFORMED_FAMILY"
	CodeRenderFailed        ErrorCode = "RENDER_FAILED"

	// Service errors.
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
)

// ExpositionError represents an error that occurred while reading a
// registry snapshot or rendering it.
type ExpositionError struct {
	Code    ErrorCode
	Message string
	Family  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ExpositionError) Error() string {
	if e.Family != "" {
		return fmt.Sprintf("[%s] %s (family: %s)", e.Code, e.Message, e.Family)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExpositionError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ExpositionError) WithContext(key string, value interface{}) *ExpositionError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewExpositionError creates a new exposition error with the specified
// code and message.
func NewExpositionError(code ErrorCode, message string) *ExpositionError {
	return &ExpositionError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewExpositionErrorWithFamily creates an exposition error for a specific
// metric family.
func NewExpositionErrorWithFamily(code ErrorCode, message, family string) *ExpositionError {
	return &ExpositionError{
		Code:    code,
		Message: message,
		Family:  family,
		Context: make(map[string]interface{}),
	}
}

// WrapExpositionError wraps an existing error as an exposition error.
func WrapExpositionError(code ErrorCode, message string, err error) *ExpositionError {
	return &ExpositionError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one, looking
// through any wrapping so a code survives fmt.Errorf("%w") chains.
func GetCode(err error) ErrorCode {
	var expositionErr *ExpositionError
	if stderrors.As(err, &expositionErr) {
		return expositionErr.Code
	}
	var configErr *ConfigError
	if stderrors.As(err, &configErr) {
		return configErr.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
// Exposition failures never are: the endpoint either returns a complete
// document or fails entirely, and the scraper retries on its own cycle.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeServiceTimeout, CodeServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a condition that should stop
// execution.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrRegistryUnavailable creates an error for an unreadable registry
// backend.
func ErrRegistryUnavailable(err error) *ExpositionError {
	return WrapExpositionError(CodeRegistryUnavailable, "Registry storage could not be read", err)
}

// ErrMalformedFamily creates an error for an internally inconsistent
// metric family.
func ErrMalformedFamily(family, reason string) *ExpositionError {
	return NewExpositionErrorWithFamily(CodeMalformedFamily, "Malformed metric family: "+reason, family)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
