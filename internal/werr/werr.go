// Package werr classifies errors produced by the fuzzer's components into the
// kinds described by the error handling design: schema and contract errors
// are fatal at load time, solve failures and runtime errnos are local and
// recovered, dispatch and trace-store errors terminate a run.
package werr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind distinguishes the error handling policy that applies to an error.
type Kind int

const (
	// Internal is the zero value and should not appear in practice; treated
	// as fatal if it does.
	Internal Kind = iota
	// Schema errors are malformed S-expressions, unknown type references,
	// duplicate names, or incompatible result shapes. Fatal at load time.
	Schema
	// Contract errors are unresolved parameter/attribute references or kind
	// mismatches in ILANG/OLANG. Fatal at load time.
	Contract
	// Solve is a local, per-call failure: unsat or solver timeout.
	Solve
	// Dispatch is an IPC failure: framing error, guest death, read/write
	// failure. Terminates the run for that runtime.
	Dispatch
	// RuntimeErrno is not a fuzzer error: the call returned nonzero errno.
	// Recorded in the trace, effects suppressed.
	RuntimeErrno
	// TraceStore is a disk I/O failure while persisting the trace. Fatal.
	TraceStore
)

func (k Kind) String() string {
	switch k {
	case Schema:
		return "schema"
	case Contract:
		return "contract"
	case Solve:
		return "solve"
	case Dispatch:
		return "dispatch"
	case RuntimeErrno:
		return "runtime_errno"
	case TraceStore:
		return "trace_store"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind, preserving the pkg/errors
// stack trace captured at Wrap/New time.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a new Error of the given kind with a stack trace attached.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind and a stack trace (if the cause doesn't already carry
// one) to an existing error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// Fatal reports whether errors of this kind should terminate the run, as
// opposed to being recovered and logged locally.
func (k Kind) Fatal() bool {
	switch k {
	case Schema, Contract, Dispatch, TraceStore, Internal:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
