package aggregator

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pa-hotnews/go-srcagg/cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultPruneIn      = 5 * time.Minute
)

type config struct {
	allowed        []string
	clock          clock.Clock
	failureTTL     time.Duration
	fetchTimeout   time.Duration
	observers      []Observer
	pruneIn        time.Duration
	successTTL     time.Duration
	tracerProvider trace.TracerProvider
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:          clock.New(),
		failureTTL:     cache.DefaultFailureTTL,
		fetchTimeout:   defaultFetchTimeout,
		pruneIn:        defaultPruneIn,
		successTTL:     cache.DefaultSuccessTTL,
		tracerProvider: otel.GetTracerProvider(),
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithSuccessTTL sets how long a successful fetch result is cached. A
// non-positive value disables caching of successful results.
//
// Default is 15 minutes.
func WithSuccessTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		cfg.successTTL = ttl
		return nil
	}
}

// WithFailureTTL sets how long a failed fetch result is cached. This should be
// short so that a source that recovers is seen soon, but long enough that a
// failing source is not called by every request. A non-positive value disables
// caching of failures.
//
// Default is 30 seconds.
func WithFailureTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		cfg.failureTTL = ttl
		return nil
	}
}

// WithFetchTimeout sets the deadline for each provider call. A call that does
// not finish in time fails with reason "timeout". A value of 0 means no
// deadline.
//
// Default is 10 seconds.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		cfg.fetchTimeout = timeout
		return nil
	}
}

// WithAllowedSources restricts the sources that may be fetched. Requests for
// other sources fail with reason "not_found" without calling the provider.
// Source ids are case-insensitive. May be given multiple times.
//
// Default is to allow all sources.
func WithAllowedSources(ids ...string) Option {
	return func(cfg *config) error {
		cfg.allowed = append(cfg.allowed, ids...)
		return nil
	}
}

// WithObserver adds an Observer that is told about each source's loading and
// outcome. May be given multiple times.
func WithObserver(obs Observer) Option {
	return func(cfg *config) error {
		if obs != nil {
			cfg.observers = append(cfg.observers, obs)
		}
		return nil
	}
}

// WithClock sets the clock used for cache expiry, latency, and pruning.
func WithClock(clk clock.Clock) Option {
	return func(cfg *config) error {
		if clk != nil {
			cfg.clock = clk
		}
		return nil
	}
}

// WithPruneInterval sets the interval between removal of expired cache
// entries. If set to 0, expired entries are only replaced, never pruned.
//
// Default is 5 minutes.
func WithPruneInterval(interval time.Duration) Option {
	return func(cfg *config) error {
		cfg.pruneIn = interval
		return nil
	}
}

// WithTracerProvider sets the provider of the tracer used to create a span for
// each provider call.
//
// Default is the global otel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) error {
		if tp != nil {
			cfg.tracerProvider = tp
		}
		return nil
	}
}
