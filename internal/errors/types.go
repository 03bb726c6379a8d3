package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeCorpus     ErrorType = "corpus"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeInternal   ErrorType = "internal"
)

// SearchdError is a structured error type with context.
//
// Recoverable controls the fault boundary: a recoverable error is answered
// on the wire as an "ERROR: <reason>" response and the connection stays
// open; an unrecoverable error terminates the owning connection without a
// response. Configuration errors abort startup.
type SearchdError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *SearchdError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SearchdError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SearchdError) Is(target error) bool {
	var t *SearchdError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithComponent adds component context.
func (e *SearchdError) WithComponent(component string) *SearchdError {
	e.Component = component

	return e
}

// Reason returns the message suitable for an "ERROR: <reason>" wire
// response. The wrapped cause is deliberately omitted so that filesystem
// paths and TLS internals never leak to clients.
func (e *SearchdError) Reason() string {
	return e.Message
}

// Error creation functions

// NewConfigError creates a configuration error. Configuration errors are
// fatal and abort startup.
func NewConfigError(code, message string) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewCorpusUnavailable creates a corpus availability error. The query that
// hit it fails, the connection and the process stay up.
func NewCorpusUnavailable(message string, cause error) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeCorpus,
		Code:        ErrCodeCorpusUnavailable,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error for a malformed payload.
func NewValidationError(code, message string) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewTransportError creates a transport error.
func NewTransportError(code, message string, cause error) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeTransport,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewAuthError creates an authentication error.
func NewAuthError(code, message string) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeAuth,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error classification utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SearchdError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsCorpusUnavailable checks if an error means the corpus could not be read.
func IsCorpusUnavailable(err error) bool {
	var se *SearchdError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeCorpus
	}

	return false
}

// IsValidationError checks if an error is a payload validation failure.
func IsValidationError(err error) bool {
	var se *SearchdError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeValidation
	}

	return false
}

// IsAuthError checks if an error is an authentication failure.
func IsAuthError(err error) bool {
	var se *SearchdError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeAuth
	}

	return false
}

// IsTransportError checks if an error is transport-related.
func IsTransportError(err error) bool {
	var se *SearchdError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeTransport
	}

	return false
}

// Common error codes.
const (
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeCorpusUnavailable = "ERR_CORPUS_UNAVAILABLE"
	ErrCodeCorpusMissing     = "ERR_CORPUS_MISSING"
	ErrCodePayloadInvalid    = "ERR_PAYLOAD_INVALID"
	ErrCodePayloadEncoding   = "ERR_PAYLOAD_ENCODING"
	ErrCodeHandshakeFailed   = "ERR_HANDSHAKE_FAILED"
	ErrCodeConnectionClosed  = "ERR_CONNECTION_CLOSED"
	ErrCodePSKMismatch       = "ERR_PSK_MISMATCH"
	ErrCodePSKMissing        = "ERR_PSK_MISSING"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// Helper constructors for common errors

// ErrCorpusMissing creates a startup-time corpus accessibility error.
func ErrCorpusMissing(path string, cause error) *SearchdError {
	return &SearchdError{
		Type:        ErrorTypeCorpus,
		Code:        ErrCodeCorpusMissing,
		Message:     "corpus file inaccessible: " + path,
		Cause:       cause,
		Recoverable: false,
	}
}

// ErrUndecodablePayload creates a validation error for payloads that are
// not valid UTF-8 after sanitization.
func ErrUndecodablePayload() *SearchdError {
	return NewValidationError(ErrCodePayloadEncoding, "request is not valid UTF-8")
}

// ErrPSKMismatch creates an authentication error for a wrong pre-shared key.
func ErrPSKMismatch() *SearchdError {
	return NewAuthError(ErrCodePSKMismatch, "pre-shared key mismatch")
}

// ErrPSKMissing creates an authentication error for an absent pre-shared key.
func ErrPSKMissing() *SearchdError {
	return NewAuthError(ErrCodePSKMissing, "pre-shared key required but not supplied")
}
