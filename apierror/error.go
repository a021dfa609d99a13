// Package apierror provides an error type that carries the HTTP status of a
// failed upstream request, so that callers can tell an unknown source apart
// from a source that is failing.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is the type of error returned when an upstream HTTP request completes
// with a non-success status.
type Error struct {
	err    error
	status int
}

func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// FromResponse creates an error from a response status and body. The body,
// if not blank, becomes the error message. A zero status yields a plain error.
func FromResponse(status int, body []byte) error {
	var err error
	text := strings.TrimSpace(string(body))
	if text != "" {
		err = errors.New(text)
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

// IsStatus returns true if err is, or wraps, an *Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.status == status
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	// If there is only status, then return status text
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

func (e *Error) Status() int {
	return e.status
}

// Text returns the status, status text, and message combined.
func (e *Error) Text() string {
	var b strings.Builder
	if e.status != 0 {
		fmt.Fprintf(&b, "%d", e.status)
		if text := http.StatusText(e.status); text != "" {
			b.WriteString(" ")
			b.WriteString(text)
		}
	}
	if e.err != nil {
		if b.Len() != 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.err
}
