// Package failure defines the error taxonomy shared by the evaluation pipeline.
//
// Network-facing clients never return these to their callers as Go errors;
// they embed them in tagged results so a degraded lookup is distinguishable
// from a clean one.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Failure kinds.
const (
	RateLimited            Kind = "rate_limited"
	NetworkFailure         Kind = "network_failure"
	ParseFailure           Kind = "parse_failure"
	InvalidURL             Kind = "invalid_url"
	UnknownPredictionValue Kind = "unknown_prediction_value"
)

// Error is a classified failure of a single operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns an Error of the given kind for op, wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind, so
// errors.Is(err, failure.ErrRateLimited) matches any rate-limited failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrRateLimited            = &Error{Kind: RateLimited}
	ErrNetworkFailure         = &Error{Kind: NetworkFailure}
	ErrParseFailure           = &Error{Kind: ParseFailure}
	ErrInvalidURL             = &Error{Kind: InvalidURL}
	ErrUnknownPredictionValue = &Error{Kind: UnknownPredictionValue}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Message returns err's text, or "" for a nil error. Used when a failure
// crosses the bus as a string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FromWire rebuilds an error that crossed the bus as text plus kind.
func FromWire(kind Kind, msg string) error {
	if msg == "" && kind == "" {
		return nil
	}
	if kind == "" {
		return errors.New(msg)
	}
	return &Error{Kind: kind, Err: errors.New(msg)}
}
