// Package failure defines the error taxonomy every workflow operation reports
// through and the tagged result envelope handed to callers.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindValidation        Kind = "validation_failed"
	KindDuplicateContact  Kind = "duplicate_contact"
	KindAlreadyExists     Kind = "already_exists"
	KindInvalidTransition Kind = "invalid_transition"
	KindTimeout           Kind = "timeout"
	KindUnavailable       Kind = "unavailable"
	KindUnexpected        Kind = "unexpected"
)

const (
	unexpectedMessage = "Something went wrong. Please try again."
	timeoutMessage    = "The request took too long. Please try again."
)

// HTTPStatus maps a kind to the status code the API answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindDuplicateContact, KindAlreadyExists, KindInvalidTransition:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the only error type that crosses a ledger boundary. Message is safe
// to show to end users; Err holds the underlying cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New builds a failure with a machine code and a user-facing message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation builds a ValidationFailed failure.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// Unexpected hides err behind the generic retry message.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Code: "unexpected", Message: unexpectedMessage, Err: err}
}

// Timeout reports a bounded call that ran out of time.
func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Code: "timeout", Message: timeoutMessage, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches failures by kind and code so package sentinels work with errors.Is
// even after Wrap attached a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Withf returns a copy of e with a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// From converts any error into a failure. Failures pass through untouched,
// deadline expiry becomes Timeout and everything else becomes Unexpected.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return Unexpected(err)
}

// KindOf reports the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
