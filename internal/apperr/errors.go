package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorises errors that cross the service boundary.
type Kind int

const (
	KindBackend Kind = iota
	KindValidation
	KindUnauthorized
	KindInvalidSession
	KindForbidden
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidSession:
		return "invalid_session"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "backend"
	}
}

// Status is the HTTP status a handler responds with for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized, KindInvalidSession:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is always safe to show to a client.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input for validation errors.
	Field string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Status() int {
	return e.Kind.Status()
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func ValidationField(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func InvalidSession(message string) *Error {
	return &Error{Kind: KindInvalidSession, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// Backend wraps a store or storage failure. An empty message means the client sees the
// sanitised form of cause.
func Backend(cause error, message string) *Error {
	return &Error{Kind: KindBackend, Message: message, Cause: cause}
}

// As unwraps err to an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// PublicMessage is what a client may see for err.
func PublicMessage(err error) string {
	if e, ok := As(err); ok {
		if e.Message != "" {
			return e.Message
		}
		return Sanitize(e.Cause)
	}
	return Sanitize(err)
}

// StatusOf maps err to a response status; unclassified errors are backend failures.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status()
	}
	return http.StatusInternalServerError
}
