package httpsource

import (
	"fmt"
	"net/http"
	"time"
)

type config struct {
	client       *http.Client
	header       http.Header
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		header: make(http.Header),
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClient sets the HTTP client used for requests. Default is
// http.DefaultClient.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.client = c
		}
		return nil
	}
}

// WithHeader adds a header to every request. May be given multiple times.
func WithHeader(key, value string) Option {
	return func(cfg *config) error {
		cfg.header.Add(key, value)
		return nil
	}
}

// WithRetry retries requests that fail with a connection error or a 5xx
// status, up to retryMax times, waiting between waitMin and waitMax between
// attempts. Retries happen within a single fetch and are bounded by the fetch
// deadline.
//
// Default is no retries.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(cfg *config) error {
		if retryMax < 0 {
			return fmt.Errorf("negative retry max: %d", retryMax)
		}
		if waitMin > waitMax {
			return fmt.Errorf("retry wait min %s greater than max %s", waitMin, waitMax)
		}
		cfg.retryMax = retryMax
		cfg.retryWaitMin = waitMin
		cfg.retryWaitMax = waitMax
		return nil
	}
}
