package goIdentity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is open.
	ErrAccountLocked = errors.New("account locked")
	// ErrRefreshInvalid covers missing, expired, already-rotated and orphaned refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrTokenInvalid is returned for access tokens that fail verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrOneTimeTokenInvalid covers unknown, used and expired verification or reset tokens.
	ErrOneTimeTokenInvalid = errors.New("invalid or expired token")
	// ErrEmailAlreadyVerified is returned by ResendVerification.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrUserNotFound is returned when an authenticated action targets a missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInput tags validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable wraps credential store failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrSessionStoreUnavailable wraps session store failures.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
	// ErrNotificationFailed is returned only under the fail-closed notification policy.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrEngineNotReady is returned when the engine is used without required dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrEmailTaken is returned by CredentialStore.CreateUser on a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotFound is returned by CredentialStore lookups and consumes that match nothing.
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies engine errors for transports.
type ErrorKind uint8

const (
	// KindInternal is the zero value: an unexpected failure.
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindBadRequest
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is the error type returned by every Engine operation. Message is safe
// to show to end users; Err carries the sentinel and, for infrastructure
// failures, the cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that are not *Error fall back to their sentinel.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrEmailTaken):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid):
		return KindUnauthorized
	case errors.Is(err, ErrOneTimeTokenInvalid),
		errors.Is(err, ErrEmailAlreadyVerified),
		errors.Is(err, ErrUserNotFound):
		return KindBadRequest
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrSessionStoreUnavailable),
		errors.Is(err, ErrNotificationFailed):
		return KindTransient
	default:
		return KindInternal
	}
}

// PublicMessage is the text a transport may show for err. Internal failures
// get a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	switch KindOf(err) {
	case KindTransient:
		return "service temporarily unavailable"
	case KindInternal:
		return "internal error"
	default:
		return err.Error()
	}
}

func validationError(field, reason string) error {
	return &Error{Kind: KindValidation, Message: field + ": " + reason, Err: ErrInvalidInput}
}

func invalidCredentials() error {
	return &Error{Kind: KindUnauthorized, Message: "invalid credentials", Err: ErrInvalidCredentials}
}

func accountLocked(minutes int) error {
	return &Error{
		Kind:    KindUnauthorized,
		Message: fmt.Sprintf("account locked, retry in %dm", minutes),
		Err:     ErrAccountLocked,
	}
}

func refreshInvalid() error {
	return &Error{Kind: KindUnauthorized, Message: "invalid or expired session", Err: ErrRefreshInvalid}
}

func tokenInvalid() error {
	return &Error{Kind: KindUnauthorized, Message: "invalid token", Err: ErrTokenInvalid}
}

func oneTimeTokenInvalid() error {
	return &Error{Kind: KindBadRequest, Message: "invalid or expired token", Err: ErrOneTimeTokenInvalid}
}

func emailTaken() error {
	return &Error{Kind: KindConflict, Message: "email already registered", Err: ErrEmailTaken}
}

func storeUnavailable(err error) error {
	return &Error{Kind: KindTransient, Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
}

func sessionStoreUnavailable(err error) error {
	return &Error{Kind: KindTransient, Err: fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)}
}

func internalError(err error) error {
	return &Error{Kind: KindInternal, Err: err}
}
