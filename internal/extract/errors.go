package extract

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	Malformed      ErrorKind = "malformed"
	SchemaMismatch ErrorKind = "schema_mismatch"
	Unreadable     ErrorKind = "unreadable"
)

// Error is a per-file extraction failure. It is reported in the run summary
// and only aborts a run in strict mode.
type Error struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, source string, err error) error {
	return &Error{Kind: kind, Source: source, Err: err}
}

// IsKind reports whether err is an extraction Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// OCRReason explains why the recognition fallback produced nothing.
type OCRReason string

const (
	OCRUnavailable OCRReason = "unavailable"
	OCREmpty       OCRReason = "empty"
)

// ErrOCRUnavailable is returned by extractors built without a recognizer.
var ErrOCRUnavailable = errors.New("ocr engine unavailable")

// OCRError reports an exhausted fallback. FirstPageText carries whatever the
// direct text layer returned for page one, for debugging.
type OCRError struct {
	Source        string
	Reason        OCRReason
	FirstPageText string
	Err           error
}

func (e *OCRError) Error() string {
	msg := fmt.Sprintf("extract %s: no transactions after ocr fallback (%s)", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OCRError) Unwrap() error { return e.Err }
