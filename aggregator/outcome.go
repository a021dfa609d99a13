package aggregator

import (
	"context"
	"time"

	"github.com/pa-hotnews/go-srcagg/source"
)

// State is the state of one source within a fetch. A source that was not
// cached goes from Loading to Success or Failure. A cached source is reported
// in its final state without a Loading phase.
type State int

const (
	Loading State = iota
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Outcome is the final result of fetching one source.
type Outcome[P any] struct {
	// ID is the normalized source id.
	ID    source.ID
	State State
	// Payload is the fetched data. It is the zero value for failures.
	Payload P
	// Err is the fetch error for failures.
	Err error
	// Reason is a short description of a failure, such as "timeout".
	Reason string
	// Cached is true when the outcome was served from cache without calling
	// the provider.
	Cached bool
	// Shared is true when the provider call was shared with another caller.
	Shared bool
	// Latency is the time taken to resolve this outcome.
	Latency time.Duration
}

// OK returns true if the outcome is a success.
func (o Outcome[P]) OK() bool {
	return o.State == Success
}

// Report returns the payload-free description of the outcome given to
// observers.
func (o Outcome[P]) Report() Report {
	return Report{
		ID:      o.ID,
		State:   o.State,
		Reason:  o.Reason,
		Cached:  o.Cached,
		Shared:  o.Shared,
		Latency: o.Latency,
	}
}

// Report describes a source outcome without its payload.
type Report struct {
	ID      source.ID
	State   State
	Reason  string
	Cached  bool
	Shared  bool
	Latency time.Duration
}

// Observer is told about the progress of each source fetch. Observer methods
// are called from the goroutine fetching the source, and must not block.
type Observer interface {
	// Loading is called when a source was not cached and must be fetched.
	Loading(ctx context.Context, id source.ID)
	// Outcome is called when a source has resolved.
	Outcome(ctx context.Context, r Report)
}

// Collect reads all outcomes from ch until it is closed, and returns them by
// source id.
func Collect[P any](ch <-chan Outcome[P]) map[source.ID]Outcome[P] {
	outcomes := make(map[source.ID]Outcome[P])
	for o := range ch {
		outcomes[o.ID] = o
	}
	return outcomes
}
