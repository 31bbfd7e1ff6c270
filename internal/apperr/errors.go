package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that must react differently to each.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindUpstream    Kind = "upstream"
	KindPersistence Kind = "persistence"
	KindBusy        Kind = "busy"
	KindInternal    Kind = "internal"
)

// Error carries a kind, a message that is safe to show a client, and the cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports missing or malformed caller input.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFound reports an operation on an unknown session.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Upstream wraps a failure of the model call or of asset I/O.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Persistence wraps a backing-store write failure.
func Persistence(msg string, err error) error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// Busy reports that the upstream queue is full.
func Busy(msg string, err error) error {
	return &Error{Kind: KindBusy, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
