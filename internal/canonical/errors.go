package canonical

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected record.
type ErrorKind string

const (
	InvalidField ErrorKind = "invalid_field"
	MissingField ErrorKind = "missing_field"
	Implausible  ErrorKind = "implausible"
)

// ValidationError rejects one record; the run continues unless strict.
type ValidationError struct {
	Kind  ErrorKind
	Field string
	Ref   string
	Err   error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Kind, e.Field)
	if e.Ref != "" {
		msg += " at " + e.Ref
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err rejects a single record.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
