package auth

import "fmt"

// Reason classifies an authentication failure.
type Reason string

const (
	ReasonInvalidCredentials  Reason = "InvalidCredentials"
	ReasonUnreachable         Reason = "Unreachable"
	ReasonUnsupportedAuthType Reason = "UnsupportedAuthType"
	ReasonTimeout             Reason = "Timeout"
)

// Error is returned by Authenticate for every failure.
type Error struct {
	Reason Reason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Reason, e.Msg, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Reason, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(reason Reason, err error, format string, args ...any) *Error {
	return &Error{Reason: reason, Msg: fmt.Sprintf(format, args...), Err: err}
}
