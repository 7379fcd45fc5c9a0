// Package kverr defines the closed error taxonomy the coordinator and HTTP
// API share so a replica-level failure never has to be string-matched to
// decide what the client sees.
package kverr

import "fmt"

// Kind is one of the error kinds named in the spec's error handling design.
type Kind string

const (
	// BadRequest: invalid N/W/R, missing value, malformed JSON.
	BadRequest Kind = "BAD_REQUEST"
	// QuorumFailed: fewer than W/R successes arrived before the deadline.
	QuorumFailed Kind = "QUORUM_FAILED"
	// PeerTimeout: a replica call exceeded its per-peer deadline. Never
	// propagated verbatim to a client — absorbed by the coordinator.
	PeerTimeout Kind = "PEER_TIMEOUT"
	// PeerError: a replica returned a non-2xx status or refused the
	// connection. Never propagated verbatim to a client.
	PeerError Kind = "PEER_ERROR"
	// Internal: an unexpected invariant violation.
	Internal Kind = "INTERNAL"
)

// Error is a kverr-classified error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with Printf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, preserving it for errors.Unwrap/Is.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if as, ok := err.(*Error); ok {
		ke = as
	} else {
		return false
	}
	return ke.Kind == kind
}
