package cache

import "time"

const (
	DefaultSuccessTTL = 15 * time.Minute
	DefaultFailureTTL = 30 * time.Second
)

// Policy decides how long fetch results are cached. A non-positive TTL means
// that kind of result is not cached.
type Policy struct {
	SuccessTTL time.Duration
	FailureTTL time.Duration
}

// DefaultPolicy returns a Policy with the default success and failure TTLs.
func DefaultPolicy() Policy {
	return Policy{
		SuccessTTL: DefaultSuccessTTL,
		FailureTTL: DefaultFailureTTL,
	}
}

// TTL returns the time-to-live for a result with the given outcome.
func (p Policy) TTL(outcome Outcome) time.Duration {
	if outcome == Failure {
		return p.FailureTTL
	}
	return p.SuccessTTL
}

// Caches returns true if results with the given outcome are cached at all.
func (p Policy) Caches(outcome Outcome) bool {
	return p.TTL(outcome) > 0
}
