// errors.go -- Error taxonomy for the auth flows.
//
// Every user-correctable failure is a *UserError whose Message is safe to flash
// and whose Kind is one of the sentinels below. Anything else is an internal
// failure and becomes a generic 500 page.
package auth

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrDuplicateUser = errors.New("user already registered")
	ErrAuth          = errors.New("authentication failed")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotFound      = errors.New("user not found")
	ErrForbidden     = errors.New("forbidden")

	// ErrMailDelivery wraps mail transport failures. Not a *UserError, but the
	// handler reports it as a generic flash rather than a 500 page.
	ErrMailDelivery = errors.New("sending email failed")
)

// UserError is a failure the user can fix. Message is shown verbatim.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Kind }

func userError(kind error, msg string) error {
	return &UserError{Kind: kind, Message: msg}
}

// invalidLinkMessage is the only thing a user ever learns about a bad reset link.
const invalidLinkMessage = "The password reset link is invalid or has expired."
