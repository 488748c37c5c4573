package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures across the execution core so transports can
// map them uniformly. Kinds are stable strings: they appear verbatim as
// error_kind in status responses and must not be renamed.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNotOwner            ErrorKind = "not_owner"
	KindDeviceBusy          ErrorKind = "device_busy"
	KindHostUnreachable     ErrorKind = "host_unreachable"
	KindInfeasible          ErrorKind = "infeasible"
	KindNeedsDisambiguation ErrorKind = "needs_disambiguation"
	KindNotFound            ErrorKind = "not_found"
	KindTimeout             ErrorKind = "timeout"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

// IsValid checks if the error kind is one of the defined values.
func (k ErrorKind) IsValid() bool {
	switch k {
	case KindInvalidInput, KindNotOwner, KindDeviceBusy, KindHostUnreachable,
		KindInfeasible, KindNeedsDisambiguation, KindNotFound, KindTimeout,
		KindCancelled, KindInternal:
		return true
	}
	return false
}

// Error is a classified error. Msg is safe to surface to API clients;
// Err (if set) carries the underlying cause for logs.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errf builds a classified error from a format string.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr classifies an existing error, preserving it as the cause.
func WrapErr(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from an error chain. Context cancellation
// and deadline errors map to their dedicated kinds; anything else
// unclassified is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
