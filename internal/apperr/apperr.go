// Package apperr defines the closed set of failure kinds that flow from the
// provider, storage and state layers up to the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Internal Kind = iota
	Validation
	Submit
	JobFailed
	JobTimedOut
	UpstreamUnavailable
	StoreWriteFailed
	NotFound
	Persistence
	Orchestration
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Submit:
		return "submit_error"
	case JobFailed:
		return "job_failed"
	case JobTimedOut:
		return "job_timed_out"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case StoreWriteFailed:
		return "store_write_failed"
	case NotFound:
		return "not_found"
	case Persistence:
		return "persistence"
	case Orchestration:
		return "orchestration"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a Kind plus the operation that produced it. Msg is safe to
// show to callers; Err and Payload are kept for logs only.
type Error struct {
	Kind    Kind
	Op      string
	Msg     string
	Payload any
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// WithPayload attaches an upstream diagnostic payload.
func (e *Error) WithPayload(p any) *Error {
	e.Payload = p
	return e
}

// KindOf returns the kind of the outermost *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}
