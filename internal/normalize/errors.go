package normalize

import (
	"errors"
	"fmt"
)

// ErrUnparsable is wrapped by every ParseError.
var ErrUnparsable = errors.New("unparsable value")

// ParseError describes a value the normalizer could not interpret.
type ParseError struct {
	Field  string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %s", e.Field, e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrUnparsable }

func dateErr(input, reason string) error {
	return &ParseError{Field: "date", Input: input, Reason: reason}
}

func amountErr(input, reason string) error {
	return &ParseError{Field: "amount", Input: input, Reason: reason}
}
