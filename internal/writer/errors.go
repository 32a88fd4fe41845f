package writer

import "fmt"

// Reason classifies a write failure.
type Reason string

const (
	ReasonBadEncoding Reason = "BadEncoding"
	ReasonForbidden   Reason = "Forbidden"
	ReasonConflict    Reason = "Conflict"
	ReasonUnreachable Reason = "Unreachable"
	ReasonTimeout     Reason = "Timeout"
	ReasonFetchFailed Reason = "FetchFailed"
	ReasonWriteFailed Reason = "WriteFailed"
)

// Error is returned for every failure of NewWriteRequest and Writer.Write.
type Error struct {
	Reason Reason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write %s: %s: %v", e.Reason, e.Msg, e.Err)
	}
	return fmt.Sprintf("write %s: %s", e.Reason, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(reason Reason, err error, format string, args ...any) *Error {
	return &Error{Reason: reason, Msg: fmt.Sprintf(format, args...), Err: err}
}
