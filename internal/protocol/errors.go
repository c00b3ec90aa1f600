package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies an RCON failure.
type Kind string

const (
	KindConnectionFailed   Kind = "CONNECTION_FAILED"
	KindAuthFailed         Kind = "AUTH_FAILED"
	KindTimeout            Kind = "TIMEOUT"
	KindInvalidResponse    Kind = "INVALID_RESPONSE"
	KindNotConnected       Kind = "NOT_CONNECTED"
	KindCommandFailed      Kind = "COMMAND_FAILED"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
)

// Error is a typed RCON failure. Err carries the underlying cause when
// there is one.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a typed error from a format string.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or "" when err is not RCON-typed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an RCON error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
