// Package source defines the identity of an upstream data source and the
// provider contract that the aggregation engine fetches source data through.
package source

import (
	"context"
	"strings"
)

// ID identifies one upstream source. IDs are case-insensitive; use Normalize
// to obtain the canonical form before comparing or using an ID as a key.
type ID string

// Normalize returns the canonical form of a source id: surrounding whitespace
// removed and lowercased.
func Normalize(s string) ID {
	return ID(strings.ToLower(strings.TrimSpace(s)))
}

// Valid returns true if the id is not empty.
func (id ID) Valid() bool {
	return id != ""
}

func (id ID) String() string {
	return string(id)
}

// Provider fetches the current data for a single source. Fetch must honor ctx
// cancellation and deadline where it can, but is not required to.
//
// Any returned error is treated as a failed fetch. Return a *ProviderError to
// control the failure reason reported to callers, or a *NotFoundError when the
// source is not known to the provider.
type Provider[P any] interface {
	Fetch(ctx context.Context, id ID) (P, error)
}

// Lister is optionally implemented by a Provider that can enumerate the
// sources it serves.
type Lister interface {
	Sources(ctx context.Context) ([]string, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc[P any] func(ctx context.Context, id ID) (P, error)

// Fetch calls f(ctx, id).
func (f ProviderFunc[P]) Fetch(ctx context.Context, id ID) (P, error) {
	return f(ctx, id)
}

type bustKey struct{}

// WithBust returns a context that asks the provider to bypass any upstream
// caches, so that the fetched data is current.
func WithBust(ctx context.Context) context.Context {
	return context.WithValue(ctx, bustKey{}, true)
}

// IsBust returns true if ctx asks for upstream caches to be bypassed.
func IsBust(ctx context.Context) bool {
	bust, _ := ctx.Value(bustKey{}).(bool)
	return bust
}
