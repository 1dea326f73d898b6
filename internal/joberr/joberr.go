// Package joberr classifies failures from external collaborators so the
// per-tenant task boundary can decide between retry, skip, and abort.
package joberr

import (
	"errors"
	"fmt"
)

// Kind is the failure classification.
type Kind int

const (
	// Transient covers 5xx, 429 after retries, and connection resets.
	Transient Kind = iota
	// AuthExpired is a 401; one token refresh is attempted before the
	// tenant is skipped.
	AuthExpired
	// QuotaExceeded is an AI-API rate limit; the run continues but stops
	// generating that modality.
	QuotaExceeded
	// NotFound is a missing remote entity; the item is logged and skipped.
	NotFound
	// Validation is bad stored config; the tenant is skipped.
	Validation
	// Fatal aborts the whole pipeline (e.g. database unreachable).
	Fatal
)

var kindNames = map[Kind]string{
	Transient:     "transient",
	AuthExpired:   "auth_expired",
	QuotaExceeded: "quota_exceeded",
	NotFound:      "not_found",
	Validation:    "validation",
	Fatal:         "fatal",
}

// Error wraps an underlying error with a failure Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kindNames[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, kindNames[e.Kind], e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind. Op names the failed operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf wraps a formatted message with the given kind.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err. Unclassified errors are
// treated as Transient so they count against the tenant without
// aborting the pipeline.
func KindOf(err error) Kind {
	var je *Error
	if errors.As(err, &je) {
		return je.Kind
	}
	return Transient
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// KindName returns the wire name of a kind for error logs.
func KindName(k Kind) string { return kindNames[k] }

// FromStatus maps an HTTP status code from an external platform to a Kind.
func FromStatus(status int, op string, body string) *Error {
	switch {
	case status == 401:
		return Newf(AuthExpired, op, "unauthorized: %s", body)
	case status == 404:
		return Newf(NotFound, op, "not found: %s", body)
	case status == 429:
		return Newf(Transient, op, "rate limited: %s", body)
	case status >= 500:
		return Newf(Transient, op, "server error %d: %s", status, body)
	default:
		return Newf(Validation, op, "unexpected status %d: %s", status, body)
	}
}
