package aggregator

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds engine settings that are loaded from the environment. A
// negative TTL, such as "-1s", disables caching of that kind of result.
type Config struct {
	SuccessTTL     time.Duration `env:"SRCAGG_SUCCESS_TTL"     envDefault:"15m"`
	FailureTTL     time.Duration `env:"SRCAGG_FAILURE_TTL"     envDefault:"30s"`
	FetchTimeout   time.Duration `env:"SRCAGG_FETCH_TIMEOUT"   envDefault:"10s"`
	PruneInterval  time.Duration `env:"SRCAGG_PRUNE_INTERVAL"  envDefault:"5m"`
	AllowedSources []string      `env:"SRCAGG_ALLOWED_SOURCES" envSeparator:","`
}

// LoadConfigFromEnv reads engine configuration from environment variables,
// using defaults for variables that are not set.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Options returns the engine options that apply this configuration.
func (c Config) Options() []Option {
	opts := []Option{
		WithSuccessTTL(c.SuccessTTL),
		WithFailureTTL(c.FailureTTL),
		WithFetchTimeout(c.FetchTimeout),
		WithPruneInterval(c.PruneInterval),
	}
	if len(c.AllowedSources) != 0 {
		opts = append(opts, WithAllowedSources(c.AllowedSources...))
	}
	return opts
}
