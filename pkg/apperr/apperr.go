// Package apperr classifies errors that end up in front of the user.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a user-facing failure.
type Kind string

const (
	// KindUserInput is rejected locally before any network call.
	KindUserInput Kind = "user_input"

	// KindQuotaExceeded blocks a chat request before it is sent.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindTransport covers network failures and non-JSON responses.
	KindTransport Kind = "transport"

	// KindUpstreamShape covers responses missing expected fields.
	KindUpstreamShape Kind = "upstream_shape"

	// KindStoreOperation covers object store upload, list and sign failures.
	KindStoreOperation Kind = "store_operation"

	// KindInternal is anything else.
	KindInternal Kind = "internal"
)

// Error is a classified error. Message is what the user sees.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause. The cause's text is appended to the message the way
// the store alerts show it ("Upload failed: <reason>").
func Wrap(kind Kind, message string, cause error) *Error {
	msg := message
	if cause != nil {
		msg = message + ": " + cause.Error()
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// UserInput creates a user-input error.
func UserInput(message string) *Error {
	return New(KindUserInput, message)
}

// Store wraps an object store failure.
func Store(message string, cause error) *Error {
	return Wrap(KindStoreOperation, message, cause)
}

// kinder is implemented by errors that carry a Kind without being *Error.
type kinder interface {
	ErrorKind() Kind
}

// KindOf returns the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
