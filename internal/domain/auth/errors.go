package auth

import "errors"

// ErrorKind classifies authentication and authorization failures.
type ErrorKind string

const (
	KindTokenInvalid     ErrorKind = "token_invalid"
	KindTokenExpired     ErrorKind = "token_expired"
	KindSessionRevoked   ErrorKind = "session_revoked"
	KindSessionExpired   ErrorKind = "session_expired"
	KindAccountInactive  ErrorKind = "account_inactive"
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindForbidden        ErrorKind = "forbidden"
	KindIdentityNotFound ErrorKind = "identity_not_found"
	KindInfrastructure   ErrorKind = "auth_unavailable"
)

var defaultMessages = map[ErrorKind]string{
	KindTokenInvalid:     "invalid session token",
	KindTokenExpired:     "session token has expired",
	KindSessionRevoked:   "session has been revoked, please sign in again",
	KindSessionExpired:   "session has expired, please sign in again",
	KindAccountInactive:  "account has been deactivated",
	KindUnauthenticated:  "authentication required",
	KindForbidden:        "insufficient permissions",
	KindIdentityNotFound: "user not found",
	KindInfrastructure:   "authentication is temporarily unavailable",
}

// Message returns the user-safe default message for k.
func (k ErrorKind) Message() string {
	if m, ok := defaultMessages[k]; ok {
		return m
	}
	return "authentication failed"
}

// Terminal reports whether the presented session can never succeed again
// and the client should drop its credential.
func (k ErrorKind) Terminal() bool {
	switch k {
	case KindTokenInvalid, KindTokenExpired, KindSessionRevoked, KindSessionExpired:
		return true
	default:
		return false
	}
}

// Error is the typed failure returned by every session and guard operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is comparisons; only Kind is compared.
var (
	ErrTokenInvalid     = &Error{Kind: KindTokenInvalid}
	ErrTokenExpired     = &Error{Kind: KindTokenExpired}
	ErrSessionRevoked   = &Error{Kind: KindSessionRevoked}
	ErrSessionExpired   = &Error{Kind: KindSessionExpired}
	ErrAccountInactive  = &Error{Kind: KindAccountInactive}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrIdentityNotFound = &Error{Kind: KindIdentityNotFound}
	ErrInfrastructure   = &Error{Kind: KindInfrastructure}
)

// NewError builds an Error of kind k wrapping cause.
func NewError(k ErrorKind, cause error) *Error {
	return &Error{Kind: k, Message: k.Message(), Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Message()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the ErrorKind from err. Errors that are not *Error are
// reported as infrastructure failures so callers fail closed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInfrastructure
}

// SafeMessage returns a message suitable for clients; wrapped causes are
// never exposed.
func SafeMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return KindOf(err).Message()
}
