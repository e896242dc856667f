// Package errors defines the unified error types for engine operations.
// Failures from the external generation capability, validation and the
// cache tiers are all mapped to these standard types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Caller-visible error codes carried in error payloads.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeGenerationFailure = "GENERATION_FAILURE"
	CodeValidationFailure = "VALIDATION_FAILURE"
)

// Internal error types used for classification and logging.
const (
	TypeInvalidInput      = "invalid_input_error"
	TypeTimeout           = "timeout_error"
	TypeTransport         = "transport_error"
	TypeMalformedOutput   = "malformed_output_error"
	TypeValidation        = "validation_error"
	TypeGenerationExhaust = "generation_exhausted_error"
	TypeStoreUnavailable  = "store_unavailable_error"
	TypeInternalError     = "internal_error"
)

// EngineError represents a standardized error from the orchestration engine.
// It contains everything needed for error handling, logging and the client
// error envelope.
type EngineError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"error_code"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s (code=%s, status=%d)",
		e.Type, e.Message, e.Code, e.StatusCode)
}

// HTTPStatusCode returns the HTTP status code to serve for the error.
func (e *EngineError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err is an EngineError marked retryable.
// Non-engine errors are treated as retryable transport faults.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return err != nil
}

// CodeOf extracts the caller-visible error code, defaulting to
// GENERATION_FAILURE for unclassified errors.
func CodeOf(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code != "" {
		return ee.Code
	}
	return CodeGenerationFailure
}

// NewInvalidInputError creates an input rejection error (400, never retried).
func NewInvalidInputError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidInput,
		Code:       CodeInvalidInput,
		Retryable:  false,
	}
}

// NewTimeoutError creates a per-attempt timeout error (retryable).
func NewTimeoutError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusGatewayTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Code:       CodeGenerationFailure,
		Retryable:  true,
	}
}

// NewTransportError creates a transient transport error (retryable).
func NewTransportError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeTransport,
		Code:       CodeGenerationFailure,
		Retryable:  true,
	}
}

// NewMalformedOutputError creates an error for unparseable generation
// output. Retryable within the attempt budget; permanent once exhausted.
func NewMalformedOutputError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeMalformedOutput,
		Code:       CodeValidationFailure,
		Retryable:  true,
	}
}

// NewValidationError creates a hard validation error. Retryable within the
// attempt budget: the coordinator regenerates rather than re-sends.
func NewValidationError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeValidation,
		Code:       CodeValidationFailure,
		Retryable:  true,
	}
}

// NewGenerationExhaustedError creates the terminal failure surfaced after
// all attempts are consumed. Never retried further upstream.
func NewGenerationExhaustedError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeGenerationExhaust,
		Code:       CodeGenerationFailure,
		Retryable:  false,
	}
}

// NewStoreUnavailableError creates a cache-tier failure. Absorbed
// internally; orchestration continues by bypassing the failed tier.
func NewStoreUnavailableError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeStoreUnavailable,
		Code:       CodeGenerationFailure,
		Retryable:  false,
	}
}

// NewInternalError creates an internal error (500).
func NewInternalError(message string) *EngineError {
	return &EngineError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Code:       CodeGenerationFailure,
		Retryable:  false,
	}
}
