package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why a backend operation failed.
type ErrorKind string

const (
	// KindValidation means the input was refused before any request was sent.
	KindValidation ErrorKind = "validation"
	// KindNoSession means the operation needs an authenticated session.
	KindNoSession ErrorKind = "no_session"
	// KindTransport covers dial, timeout and other network failures.
	KindTransport ErrorKind = "transport"
	// KindStatus means the backend answered with a non-2xx status.
	KindStatus ErrorKind = "status"
	// KindRejected means a 2xx body carried an {"error": ...} field.
	KindRejected ErrorKind = "rejected"
	// KindDecode means the body was malformed or lacked required fields.
	KindDecode ErrorKind = "decode"
)

// Error is the failure type returned by the API client and the controller.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// NewValidationError creates a KindValidation error.
func NewValidationError(op, msg string) *Error {
	return &Error{Op: op, Kind: KindValidation, Message: msg}
}

// NewNoSessionError creates a KindNoSession error.
func NewNoSessionError(op string) *Error {
	return &Error{Op: op, Kind: KindNoSession, Message: "not signed in"}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is an *Error that may succeed on retry.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// UserMessage returns text suitable for showing to an end user.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Try again."
	}
	switch e.Kind {
	case KindValidation, KindRejected:
		return e.Message
	case KindNoSession:
		return "Please sign in first."
	case KindTransport:
		return "Cannot reach the Luna server. Try again."
	case KindStatus:
		if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
			return "Check credentials."
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return "Something went wrong. Try again."
}
