// Package apperr defines the error taxonomy shared by the workflow and the
// HTTP layer. Every failure surfaced to a caller carries a Kind so the edge can
// map it to a response without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
	KindStorage       Kind = "storage"
	KindRender        Kind = "render"
)

// Error wraps a failure with its kind and the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Public returns the message safe to show to a caller.
func (e *Error) Public() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindStorage:
		return "storage unavailable"
	case KindRender:
		return "failed to render document"
	}
	return string(e.Kind)
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input.
func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// Authorization reports a caller acting outside its permissions or turn.
func Authorization(op, format string, args ...any) *Error {
	return newf(KindAuthorization, op, format, args...)
}

// State reports an operation that is invalid for the current status.
func State(op, format string, args ...any) *Error {
	return newf(KindState, op, format, args...)
}

// NotFound reports a missing entity.
func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

// Storage wraps a persistence or blob failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// Render wraps a PDF processing failure.
func Render(op string, err error) *Error {
	return &Error{Kind: KindRender, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
