package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pa-hotnews/go-srcagg/apierror"
)

// Failure reasons reported for conditions detected by the engine itself.
// Provider supplied reasons are passed through unchanged.
const (
	ReasonCanceled = "canceled"
	ReasonInvalid  = "invalid_source"
	ReasonNotFound = "not_found"
	ReasonPanic    = "panic"
	ReasonTimeout  = "timeout"
)

// ProviderError is a failed upstream fetch, described by a short reason such
// as "network" or "parse".
type ProviderError struct {
	Reason string
	Err    error
}

// NewProviderError creates a ProviderError with the given reason that wraps
// err. The err may be nil.
func NewProviderError(reason string, err error) *ProviderError {
	return &ProviderError{
		Reason: reason,
		Err:    err,
	}
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that a provider does not recognize a source id.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown source: %q", string(e.ID))
}

// IsNotFound returns true if err indicates an unknown source, either as a
// NotFoundError or as an HTTP 404 api error.
func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return true
	}
	return apierror.IsStatus(err, http.StatusNotFound)
}

// ReasonOf folds any fetch error into a failure reason. A nil error has no
// reason.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) && pErr.Reason != "" {
		return pErr.Reason
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case IsNotFound(err):
		return ReasonNotFound
	}
	return err.Error()
}
