package authflow

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow/gateway"
)

var (
	// ErrLocalValidation groups failures detected before any network call.
	ErrLocalValidation = errors.New("local validation failed")
	// ErrCaptchaMismatch is returned when the captcha answer does not match the issued challenge.
	ErrCaptchaMismatch = fmt.Errorf("%w: captcha mismatch", ErrLocalValidation)
	// ErrPasswordMismatch is returned when password and confirmation differ.
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrLocalValidation)

	// ErrInvariantViolation groups step entries attempted without their precondition.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrEmailNotProvided is returned when VerifyEmail is entered without an email.
	ErrEmailNotProvided = fmt.Errorf("%w: email not provided", ErrInvariantViolation)
	// ErrSecuritySessionNotFound is returned when VerifySecurity is entered without a pending session.
	ErrSecuritySessionNotFound = fmt.Errorf("%w: security session not found", ErrInvariantViolation)

	// ErrRequestInFlight is returned when the submitting control is still disabled.
	ErrRequestInFlight = errors.New("request already in flight")
	// ErrStaleResponse is returned when an outcome arrived after the user navigated away.
	ErrStaleResponse = errors.New("stale response discarded")
	// ErrStepMismatch is returned when an intent does not belong to the current step.
	ErrStepMismatch = errors.New("intent not valid for current step")
	// ErrControllerClosed is returned by every operation after Close.
	ErrControllerClosed = errors.New("controller closed")
	// ErrInvalidLocation is returned by ParseLocation for malformed input.
	ErrInvalidLocation = errors.New("invalid location")
)

// BackendError is the gateway's normalized failure.
type BackendError = gateway.BackendError

// ErrBackend matches every BackendError through errors.Is.
var ErrBackend = gateway.ErrBackend
