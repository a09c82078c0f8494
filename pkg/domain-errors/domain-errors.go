package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in pipeline terms, not HTTP terms.
type Code string

const (
	CodeInternal             Code = "internal_error"
	CodeBadRequest           Code = "bad_request"
	CodeTimeout              Code = "timeout"
	CodeInvalidConfiguration Code = "invalid_configuration"

	// Consent pipeline codes
	CodeConsentPersistence Code = "consent_persistence_failure" // store read/write failed; in-memory state stays authoritative
	CodeConsentDenied      Code = "consent_denied"

	// Delivery codes
	CodeTransportUnavailable Code = "transport_unavailable" // no delivery mechanism could be attempted
	CodeTransportFailure     Code = "transport_failure"     // network/HTTP failure after an attempt was made
	CodeDeliveryExhausted    Code = "delivery_exhausted"    // retry budget spent; batch reported as terminal failure
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across manager, queue, and
// delivery layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		// Preserve the original domain code, update message
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the domain code from an error chain, or CodeInternal
// when the chain carries no domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
