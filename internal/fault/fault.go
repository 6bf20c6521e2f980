// Package fault defines the error taxonomy shared by all hub components.
// Every caller-facing operation returns either nil or an *Error carrying a
// Kind, so callers can distinguish business-rule violations (NotFound,
// InvalidState, ...) from infrastructure failures (StoreFailure) without
// string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for caller-side handling.
type Kind string

const (
	// KindNotFound indicates the entity never existed or was removed.
	KindNotFound Kind = "not_found"

	// KindConflict indicates a duplicate or contested operation, such as
	// re-registering an identifier with a different identity.
	KindConflict Kind = "conflict"

	// KindInvalidState indicates the operation is illegal in the entity's
	// current state machine position.
	KindInvalidState Kind = "invalid_state"

	// KindAccessDenied indicates a memory-scope or role violation.
	KindAccessDenied Kind = "access_denied"

	// KindUnavailable indicates the target node is not currently connected.
	// This is a routine condition, not a fault of the hub.
	KindUnavailable Kind = "unavailable"

	// KindStoreFailure indicates the backing store did not respond within
	// policy. Persisted state may be inconsistent with in-memory caches.
	KindStoreFailure Kind = "store_failure"

	// KindInternal indicates a broken invariant inside the hub itself.
	KindInternal Kind = "internal"
)

// Error is a structured error with a taxonomy kind and a human message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the wrapped cause, enabling errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that wraps cause. A nil cause behaves like New.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// NotFound constructs a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict constructs a KindConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// InvalidState constructs a KindInvalidState error.
func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

// AccessDenied constructs a KindAccessDenied error.
func AccessDenied(format string, args ...interface{}) *Error {
	return New(KindAccessDenied, format, args...)
}

// Unavailable constructs a KindUnavailable error.
func Unavailable(format string, args ...interface{}) *Error {
	return New(KindUnavailable, format, args...)
}

// StoreFailure constructs a KindStoreFailure error wrapping cause.
func StoreFailure(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindStoreFailure, cause, format, args...)
}

// Internal constructs a KindInternal error wrapping cause.
func Internal(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, cause, format, args...)
}

// KindOf returns the Kind of err, or KindInternal if err is not a taxonomy
// error. Returns an empty Kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a KindNotFound error.
// Mirrors the store-level helper so callers need not import both packages.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}
