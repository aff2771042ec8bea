// Package protocol implements the wire dispatcher (C6): packet envelopes,
// the operation wire encoding, the command dispatch table, and the login
// handshake, continuing the teacher's common.MsgType-discriminated envelope
// convention (server/common/types.go) generalized to the full command set
// of §6.
package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind names one of the error-handling policy families from §7. Policy
// (close the connection, send a *_failed reply, log-and-continue, etc.) is
// applied by the caller based on Kind, not by this package.
type ErrorKind int

const (
	// KindProtocolViolation covers unexpected commands, malformed
	// parameters, and version/state-vector mismatches. Policy: close the
	// offending connection.
	KindProtocolViolation ErrorKind = iota
	// KindAuthDenied covers missing privilege, not-subscribed, and
	// color-in-use. Policy: send a *_failed reply; connection survives.
	KindAuthDenied
	// KindInvariantViolation covers out-of-range positions and missing
	// Jupiter sites discovered after local transformation. Policy: treat as
	// a protocol violation on the offending link; log; close that document
	// for that peer only.
	KindInvariantViolation
	// KindTransportFailure covers disconnects. Policy: mark the user not
	// CONNECTED, unsubscribe from all documents, retain the user row.
	KindTransportFailure
	// KindResourceExhausted covers oversize packets and too-many-documents.
	// Policy: reject the request; connection survives.
	KindResourceExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocolViolation:
		return "protocol_violation"
	case KindAuthDenied:
		return "auth_denied"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindTransportFailure:
		return "transport_failure"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the ErrorKind that determines its
// handling policy. It is errors.Is/errors.As compatible via Unwrap.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("protocol: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Newf builds an Error of the given kind.
func Newf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ErrUnexpectedCommand is returned by Dispatcher.Dispatch when no handler is
// registered for a command name (§4.7's "throw UnexpectedCommand").
var ErrUnexpectedCommand = errors.New("protocol: unexpected command")

// KindOf extracts the ErrorKind from err if it (or something it wraps) is a
// *Error, so a caller can apply §7's per-kind policy without needing to
// know which layer produced the error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
