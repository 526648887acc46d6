// Package serrors defines the semantic error kinds of the watcher and a
// wrapper type that carries a kind alongside an optional cause.
//
// The loop never inspects concrete transport errors. It asks errors.Is
// against one of the kinds below and decides how to recover from there.
package serrors

import (
	"errors"
	"fmt"
)

// Kind is a marker interface implemented by all semantic error kinds created
// with NewKind.
type Kind interface {
	error
	isKind()
}

type kind struct{ s string }

func (k kind) Error() string { return k.s }
func (k kind) isKind()       {}

// NewKind creates a new semantic error kind (a sentinel).
func NewKind(name string) Kind { return kind{s: name} }

var (
	// ErrFetch marks a network or transport failure while retrieving the page.
	ErrFetch = NewKind("FETCH")
	// ErrParse marks content that could not be normalized, including a missing region.
	ErrParse = NewKind("PARSE")
	// ErrChannel marks a single notification channel failing to deliver.
	ErrChannel = NewKind("CHANNEL")
	// ErrCapture marks a failed evidence capture.
	ErrCapture = NewKind("CAPTURE")
	// ErrConfig marks invalid or missing startup configuration. It is the only fatal kind.
	ErrConfig = NewKind("CONFIG")
	// ErrTimeout marks an operation that exceeded its own deadline.
	ErrTimeout = NewKind("TIMEOUT")
)

// Error is a semantic error carrying a kind, an optional wrapped cause and an
// optional message.
//
// errors.Is(err, target) matches either the kind or anything in the cause
// chain, and errors.As behaves the same way.
//
// Error() renders "<msg>: <cause>", "<msg>", "<cause>" or the kind name,
// depending on which parts are set.
type Error struct {
	kind Kind
	err  error
	msg  string
}

// With constructs a new semantic error with the given kind and message.
func With(k Kind, msgFmt string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(msgFmt, args...)}
}

// Wrap constructs a new semantic error with the given kind that wraps err.
func Wrap(k Kind, err error, msgFmt string, args ...any) *Error {
	return &Error{kind: k, err: err, msg: fmt.Sprintf(msgFmt, args...)}
}

// KindOnly creates a semantic error carrying only the kind.
func KindOnly(k Kind) *Error { return &Error{kind: k} }

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	default:
		if e.kind != nil {
			return e.kind.Error()
		}

		return "unknown error"
	}
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Is matches against either the kind or the wrapped cause chain.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return e == nil && target == nil
	}
	if e.kind != nil && errors.Is(e.kind, target) {
		return true
	}
	if e.err != nil && errors.Is(e.err, target) {
		return true
	}

	return false
}

// As performs errors.As against either the kind or the wrapped cause chain.
func (e *Error) As(target any) bool {
	if e == nil || target == nil {
		return false
	}
	if e.kind != nil && errors.As(e.kind, target) {
		return true
	}
	if e.err != nil && errors.As(e.err, target) {
		return true
	}

	return false
}

// Kind returns the kind associated with this error, or nil.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the message attached to this error.
func (e *Error) Message() string { return e.msg }

// Cause returns the wrapped cause (may be nil).
func (e *Error) Cause() error { return e.err }

// KindOf returns the first kind found in err's chain, or nil when err carries
// none of the kinds declared in this package.
func KindOf(err error) Kind {
	for _, k := range []Kind{ErrConfig, ErrFetch, ErrParse, ErrChannel, ErrCapture, ErrTimeout} {
		if errors.Is(err, k) {
			return k
		}
	}

	return nil
}
