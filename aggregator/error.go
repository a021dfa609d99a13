package aggregator

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pa-hotnews/go-srcagg/source"
)

var (
	// ErrClosed is returned when using an engine that has been closed.
	ErrClosed = errors.New("engine closed")
	// ErrNoLister is returned by Sources when the provider cannot list its
	// sources.
	ErrNoLister = errors.New("provider does not list sources")
)

// ConfigError describes every problem found with an engine configuration. An
// engine is never created from an invalid configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// validate checks the configuration, returning a *ConfigError listing all
// problems found.
func (cfg *config) validate(hasProvider bool) error {
	var errs *multierror.Error
	if !hasProvider {
		errs = multierror.Append(errs, errors.New("nil provider"))
	}
	if cfg.fetchTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative fetch timeout: %s", cfg.fetchTimeout))
	}
	if cfg.pruneIn < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative prune interval: %s", cfg.pruneIn))
	}
	if cfg.successTTL > 0 && cfg.failureTTL > cfg.successTTL {
		errs = multierror.Append(errs, fmt.Errorf("failure ttl %s longer than success ttl %s",
			cfg.failureTTL, cfg.successTTL))
	}
	for _, id := range cfg.allowed {
		if !source.Normalize(id).Valid() {
			errs = multierror.Append(errs, errors.New("empty allowed source id"))
			break
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// ttlString formats a ttl for logging, showing disabled ttls plainly.
func ttlString(ttl time.Duration) string {
	if ttl <= 0 {
		return "disabled"
	}
	return ttl.String()
}
