// Package apperrors defines the kinded error taxonomy shared by services
// and handlers. Services return kinded errors; the HTTP layer maps kinds to
// status codes in one place and never invents its own.
package apperrors

import (
	"errors"
	"net/http"
	"time"
)

// Kind classifies a failure for transport mapping and logging.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindRateLimited
	KindConflict
	KindAuthorization
)

// Error is a kinded application error. RetryAt is set only for
// rate-limited failures.
type Error struct {
	Kind    Kind
	Message string
	RetryAt *time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input (bad code format, bad amount).
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NotFound reports a missing deal, claim, or user.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Expired reports a code or deal past its validity.
func Expired(message string) *Error {
	return &Error{Kind: KindExpired, Message: message}
}

// RateLimited reports an exhausted attempt budget and when to retry.
func RateLimited(message string, retryAt time.Time) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAt: &retryAt}
}

// Conflict reports already-verified claims, duplicate settlements, and a
// reached redemption cap.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Authorization reports a caller acting on a resource it does not own or
// a membership tier below the deal's requirement.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// Internal wraps unexpected storage or crypto failures. The message shown
// to callers stays opaque; the wrapped cause is for logs only.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the kind from any error, defaulting to internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// RetryAt extracts the retry time from a rate-limited error, if any.
func RetryAt(err error) *time.Time {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.RetryAt
	}
	return nil
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindExpired:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message. Internal errors stay opaque.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal server error"
}
