// Package apperr carries the error taxonomy shared by every handler.
//
// An Error is either operational (expected, safe to describe to the
// caller) or not. Non-operational errors must never leak internal
// detail to clients in sanitized mode; the responder enforces that.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a classified failure with an HTTP status code and an
// explicit operational discriminant.
type Error struct {
	Code        int
	Message     string
	Operational bool
	cause       error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the status class reported to clients: "fail" for
// client-fault codes, "error" otherwise.
func (e *Error) Status() string {
	if e.Code >= 400 && e.Code < 500 {
		return "fail"
	}
	return "error"
}

// New builds an operational error with an explicit status code.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message, Operational: true}
}

// Newf builds an operational error from a format string.
func Newf(code int, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// Conflict reports a duplicate unique field value.
func Conflict(value string) *Error {
	return Newf(http.StatusConflict, "Duplicate field value: '%s'. Please use another value.", value)
}

// Validation reports one or more aggregated field-level violations.
func Validation(err error) *Error {
	return Newf(http.StatusBadRequest, "Invalid input data: %s", err.Error())
}

// Internal wraps an unexpected failure. It is not operational: in
// sanitized mode the client only ever sees a generic message for it.
func Internal(err error) *Error {
	return &Error{
		Code:        http.StatusInternalServerError,
		Message:     "Something has gone wrong.",
		Operational: false,
		cause:       err,
	}
}

// From returns err as an *Error, classifying unknown failures as
// non-operational internal errors.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
