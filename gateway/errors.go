package gateway

import (
	"errors"
	"fmt"
	"time"
)

// DefaultErrorMessage is used when a failure response carries no usable message.
const DefaultErrorMessage = "Request failed"

// CodeSecurityBlocked is the error code the service returns when brute-force
// protection blocks an email or address.
const CodeSecurityBlocked = "SECURITY_BLOCKED"

// ErrBackend matches every *BackendError through errors.Is.
var ErrBackend = errors.New("backend error")

// BackendError is the single failure shape produced by the gateway.
type BackendError struct {
	// Op is the gateway operation, e.g. "login".
	Op string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	// Message is the human-readable message from the response body.
	Message string
	// Code is the optional machine-readable "error" field.
	Code string
	// BlockedUntil is set when Code is CodeSecurityBlocked and the body carried it.
	BlockedUntil time.Time
	// RequestID is the X-Request-ID sent with the call.
	RequestID string

	cause error
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
}

// Unwrap exposes the transport or decode failure, if any.
func (e *BackendError) Unwrap() error {
	return e.cause
}

// Is makes errors.Is(err, ErrBackend) true for every BackendError.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// Blocked reports whether the service refused the call because of brute-force protection.
func (e *BackendError) Blocked() bool {
	return e != nil && e.Code == CodeSecurityBlocked
}

// AsBackendError unwraps err into a *BackendError.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
