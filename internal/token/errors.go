package token

import "errors"

// Kind is a stable category for authentication failures.
type Kind string

const (
	KindBadSignature       Kind = "BadSignature"
	KindMalformedPayload   Kind = "MalformedPayload"
	KindExpired            Kind = "Expired"
	KindInvalidURL         Kind = "InvalidUrl"
	KindScopeMismatch      Kind = "ScopeMismatch"
	KindPathPrefixMismatch Kind = "PathPrefixMismatch"
	KindHostMismatch       Kind = "HostMismatch"
)

// Error is the structured error returned by every token operation.
//
// Message is meant for server-side logs only; clients should receive a
// generic message derived from Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a token error, or "" for any other error.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
