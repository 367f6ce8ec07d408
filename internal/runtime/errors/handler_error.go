package errors

import (
	"fmt"
)

// Kind classifies a HandlerError into the two protocol outcomes that can be
// reported back to a caller.
type Kind int

const (
	// KindInvalidRequest covers client-caused failures: malformed payloads,
	// missing headers, decode errors. Replied as the invalid_request variant.
	KindInvalidRequest Kind = iota
	// KindInternal covers server-caused failures: handler errors, panics,
	// misconfiguration. Replied as the internal_error variant.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindInternal:
		return "internal_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// internalWireMessage is what internal errors look like on the wire unless the
// handler surfaced a message explicitly. The underlying error stays in the
// logs only.
const internalWireMessage = "internal server error"

// HandlerError is the failure type produced by extractors and handlers. It
// carries the protocol outcome kind, the component the failure originated in,
// and the underlying error.
type HandlerError struct {
	kind    Kind
	source  string
	err     error
	surface bool
}

// NewInvalidRequest wraps a client-caused failure, typically a decode error or
// a missing header. Invalid request descriptions are always surfaced to the
// caller, since they describe the caller's own input.
func NewInvalidRequest(err error) *HandlerError {
	return &HandlerError{kind: KindInvalidRequest, err: err, surface: true}
}

// NewInternal wraps a server-caused failure. The wire description is the
// generic internal error message; the wrapped error is only logged.
func NewInternal(source string, err error) *HandlerError {
	return &HandlerError{kind: KindInternal, source: source, err: err}
}

// NewInternalMessage wraps a server-caused failure whose description the
// handler explicitly wants surfaced to the caller.
func NewInternalMessage(source, msg string) *HandlerError {
	return &HandlerError{kind: KindInternal, source: source, err: fmt.Errorf("%s", msg), surface: true}
}

func (e *HandlerError) Error() string {
	switch e.kind {
	case KindInvalidRequest:
		return fmt.Sprintf("invalid request: %v", e.err)
	default:
		if e.source != "" {
			return fmt.Sprintf("internal error in %s: %v", e.source, e.err)
		}
		return fmt.Sprintf("internal error: %v", e.err)
	}
}

func (e *HandlerError) Unwrap() error { return e.err }

// Kind reports which protocol outcome this failure maps to.
func (e *HandlerError) Kind() Kind { return e.kind }

// Source identifies the component or route the failure originated in.
func (e *HandlerError) Source() string { return e.source }

// WithSource returns an error with the source filled in, unless a more
// specific source was already set. The receiver is never mutated, so a shared
// error value can cross concurrent dispatches safely.
func (e *HandlerError) WithSource(source string) *HandlerError {
	if e.source != "" {
		return e
	}
	attributed := *e
	attributed.source = source
	return &attributed
}

// WireMessage is the human-readable description placed in the reply envelope.
// Internal errors collapse to a generic description unless explicitly
// surfaced, so server internals never leak to callers.
func (e *HandlerError) WireMessage() string {
	if e.kind == KindInternal && !e.surface {
		return internalWireMessage
	}
	return e.err.Error()
}
