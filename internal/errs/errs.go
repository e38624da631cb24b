// Package errs defines the error classification shared by every layer of
// the sync core. Callers branch on the classification with KindOf instead
// of matching message strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting decisions.
type Kind int

const (
	// KindTransport covers network, TLS, and timeout failures.
	KindTransport Kind = iota + 1

	// KindProtocol covers malformed or unexpected wire data. Not
	// retryable; usually a version mismatch or corruption.
	KindProtocol

	// KindPolicyRequired means the server demands a provisioning
	// handshake. Handled inside the command executor; it surfaces only
	// when a retry after provisioning still fails.
	KindPolicyRequired

	// KindServerRejected is a well-formed error response, e.g. an
	// unknown item id. Not retryable.
	KindServerRejected

	// KindCursorInvalid means the server no longer recognizes a sync
	// key. Handled by the sync engine's bootstrap path.
	KindCursorInvalid
)

// String returns a short label for the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindPolicyRequired:
		return "policy-required"
	case KindServerRejected:
		return "server-rejected"
	case KindCursorInvalid:
		return "cursor-invalid"
	default:
		return "unknown"
	}
}

// Error is the concrete error type produced by the sync core.
type Error struct {
	// Kind is the classification callers branch on.
	Kind Kind

	// Op names the failing operation (e.g. "sync", "provision").
	Op string

	// Msg is a human-readable description suitable for the UI layer.
	Msg string

	// Status is the protocol or HTTP status that produced the error,
	// when one exists.
	Status int

	// Temporary marks errors the executor may retry with backoff.
	Temporary bool

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s (%s): %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport builds a transport-layer error. temporary controls whether the
// executor's retry policy applies.
func Transport(op string, temporary bool, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Temporary: temporary, Err: err}
}

// Protocol builds a wire-format error.
func Protocol(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// PolicyRequired builds a provisioning-demanded error.
func PolicyRequired(op string, status int) *Error {
	return &Error{
		Kind:   KindPolicyRequired,
		Op:     op,
		Status: status,
		Msg:    fmt.Sprintf("server demands provisioning (status %d)", status),
	}
}

// ServerRejected builds an error for a well-formed rejection response.
func ServerRejected(op string, status int, msg string) *Error {
	return &Error{Kind: KindServerRejected, Op: op, Status: status, Msg: msg}
}

// CursorInvalid builds an error for a rejected sync key.
func CursorInvalid(op, collectionID string) *Error {
	return &Error{
		Kind: KindCursorInvalid,
		Op:   op,
		Msg:  fmt.Sprintf("server rejected sync key for collection %s", collectionID),
	}
}

// KindOf reports the classification of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsTemporary reports whether err (or any error in its chain) is a
// retryable transport error.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary
	}
	return false
}
