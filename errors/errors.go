// Package errors defines the failure taxonomy shared by the protocol, the gateway and the store.
// Every failure reported to a client carries one of these kinds.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindNotFound      Kind = "NotFoundError"
	KindAuthorization Kind = "AuthorizationError"
	KindNotConnected  Kind = "NotConnectedError"
	KindStore         Kind = "StoreError"
)

// Error is a tagged failure: a kind, a human-readable message and an optional cause.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// ErrWorkerPanic marks a background worker that panicked and is being restarted.
var ErrWorkerPanic = stderrors.New("worker panicked")

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotConnected  = &Error{Kind: KindNotConnected}
	ErrStore         = &Error{Kind: KindStore}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotConnected(format string, args ...any) error {
	return &Error{Kind: KindNotConnected, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a collaborator failure. Already tagged errors pass through untouched
// so a NotFoundError raised inside the store keeps its kind.
func Store(err error, message string) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if stderrors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: KindStore, Message: message, Err: err}
}

// KindOf classifies any error. Untagged errors only come from collaborators,
// hence StoreError.
func KindOf(err error) Kind {
	var tagged *Error
	if stderrors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindStore
}

// MessageOf returns the client-facing message, without the wrapped cause.
func MessageOf(err error) string {
	var tagged *Error
	if stderrors.As(err, &tagged) {
		if tagged.Message != "" {
			return tagged.Message
		}
		return string(tagged.Kind)
	}
	return "internal store failure"
}
