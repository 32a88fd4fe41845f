package config

import "fmt"

// Error reports an invalid or missing parameter.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parameter %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}
