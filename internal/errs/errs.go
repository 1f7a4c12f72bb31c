// Package errs carries user-facing failure reasons alongside technical
// errors, for both the CLI and the HTTP surface.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// UserErrorf is a user-facing error.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a user-facing reason and, optionally,
// the HTTP status it maps to.
//
// When Err is nil, Error() falls back to Reason.
type Error struct {
	Err    error
	Reason string
	Status int
}

// Wrap creates an Error with the given underlying error and user-facing reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error with a formatted reason.
func Wrapf(err error, format string, a ...any) Error {
	return Error{Err: err, Reason: fmt.Sprintf(format, a...)}
}

// WithStatus returns a copy of e that maps to the given HTTP status.
func (e Error) WithStatus(status int) Error {
	e.Status = status
	return e
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	return e.Reason
}

// Status reports the HTTP status and the user-facing message for err.
// Errors that carry no status map to 500.
func Status(err error) (int, string) {
	var e Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, err.Error()
	}
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := e.Reason
	if msg == "" {
		msg = e.Error()
	}
	return status, msg
}
