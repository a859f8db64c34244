// Package xdberr provides the shared error taxonomy used by pagestore,
// logchain, and index. Errors are classified by kind, not by concrete type,
// so callers branch on severity with errors.Is/As instead of a type switch.
package xdberr

import (
	"errors"
	"fmt"
)

// Kind classifies how serious an error is and what a caller should do about
// it.
type Kind int

const (
	// Warning is expected in normal operation but reportable.
	Warning Kind = iota
	// Happens is recoverable and caller-actionable.
	Happens
	// Critical indicates likely corruption or a logic bug. The operation
	// aborts and store state may be inconsistent.
	Critical
	// Unexpected indicates an invariant violation. The operation aborts but
	// state prior to the call is preserved.
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case Warning:
		return "warning"
	case Happens:
		return "happens"
	case Critical:
		return "critical"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a Kind tag and an operation-specific message.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New constructs an Error of the given kind. cause may be nil.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.kind, e.msg, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf walks err's wrap chain and returns the first *Error's kind. If err
// does not wrap an *Error, KindOf returns Happens since callers only ask this
// of errors they intend to branch on.
func KindOf(err error) Kind {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.kind
	}
	return Happens
}
