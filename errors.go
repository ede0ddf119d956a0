package secure

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is the error stores return for unknown identifiers.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrMismatchedHashAndPassword is returned when a password digest comparison fails.
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrStatelessSession is a configuration error: something asked the session
// manager to create a session inside a stateless zone. Surfaced at zone
// compilation where possible, fatal if it reaches a request.
var ErrStatelessSession = goerrors.New("cannot create a session under the stateless policy", goerrors.CategoryValidation).
	WithTextCode("STATELESS_SESSION").
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when a bearer token is past its expiry.
var ErrTokenExpired = goerrors.New("authentication token expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when a bearer token cannot be parsed or verified.
var ErrTokenMalformed = goerrors.New("authentication token malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// GenericLoginMessage is the only authentication failure text ever shown to a
// client. Every internal reason maps to it so responses cannot be used to
// enumerate accounts; the real reason is available to logs via AuthFailure.
const GenericLoginMessage = "invalid username or password"

// FailureReason classifies why an authentication attempt was rejected.
type FailureReason string

const (
	FailureNotFound           FailureReason = "not_found"
	FailureBadCredential      FailureReason = "bad_credential"
	FailureDisabled           FailureReason = "disabled"
	FailureLocked             FailureReason = "locked"
	FailureCredentialsExpired FailureReason = "credentials_expired"
	FailureUnavailable        FailureReason = "unavailable"
)

// AuthFailure carries the internal rejection reason for an authentication
// attempt. Reason and cause are for logs only; Message is what clients see.
type AuthFailure struct {
	Reason FailureReason
	cause  error
}

func newAuthFailure(reason FailureReason, cause error) *AuthFailure {
	return &AuthFailure{Reason: reason, cause: cause}
}

func (f *AuthFailure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("authentication failed (%s): %v", f.Reason, f.cause)
	}
	return fmt.Sprintf("authentication failed (%s)", f.Reason)
}

func (f *AuthFailure) Unwrap() error {
	return f.cause
}

// Message returns the uniform client-facing text regardless of reason.
func (f *AuthFailure) Message() string {
	return GenericLoginMessage
}

// AsAuthFailure extracts an AuthFailure from an error chain.
func AsAuthFailure(err error) (*AuthFailure, bool) {
	var f *AuthFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsAuthFailure reports whether err is an authentication failure with the
// given reason.
func IsAuthFailure(err error, reason FailureReason) bool {
	f, ok := AsAuthFailure(err)
	return ok && f.Reason == reason
}
