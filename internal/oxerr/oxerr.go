// Package oxerr defines the abstract error kinds shared across the store,
// commit, checkout, merge, and transfer engines, so the command
// layer can map any error to a user-facing message and exit code by a single
// type switch instead of string matching.
package oxerr

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error categories.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindConflict
	KindCorruptStore
	KindIO
	KindNetwork
	KindAuthRequired
	KindVersionMismatch
	KindLocked
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindConflict:
		return "Conflict"
	case KindCorruptStore:
		return "CorruptStore"
	case KindIO:
		return "IO"
	case KindNetwork:
		return "Network"
	case KindAuthRequired:
		return "AuthRequired"
	case KindVersionMismatch:
		return "VersionMismatch"
	case KindLocked:
		return "Locked"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind and a short message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error that carries cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it (or a wrapped error) is an *Error,
// else KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Sentinel errors for the common not-found case, so package-level code can
// use errors.Is against a single value where a full Error isn't needed.
var ErrNotFound = New(KindNotFound, "not found")
