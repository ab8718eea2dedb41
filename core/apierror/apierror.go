// Package apierror maps failures to HTTP answers.
package apierror

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the client
type Kind int

// all error kinds
const (
	KindDownstream Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

// Status returns the HTTP status code for the kind
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	default:
		return "downstream"
	}
}

// Error is an error with a client facing message. Err is the cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.Kind.Status()
}

// Validation returns a 400 error
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Authentication returns a 401 error
func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Authorization returns a 403 error
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound returns a 404 error
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict returns a 409 error
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Downstream returns a 500 error wrapping the cause
func Downstream(message string, err error) *Error {
	return &Error{Kind: KindDownstream, Message: message, Err: err}
}

// From returns err as *Error. Anything else becomes a downstream error with message.
func From(err error, message string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Downstream(message, err)
}
