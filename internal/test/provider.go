// Package test contains a controllable source provider for use in tests.
package test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pa-hotnews/go-srcagg/source"
)

// Behavior describes how the Provider responds to a fetch of one source.
type Behavior struct {
	Payload string
	Err     error
	// Delay is how long the fetch takes before returning.
	Delay time.Duration
	// Block, if not nil, holds the fetch until it is closed or the fetch
	// context ends.
	Block chan struct{}
	// IgnoreCancel makes the fetch ignore its context while blocked or
	// delayed.
	IgnoreCancel bool
}

// Provider is a source.Provider and source.Lister whose per-source responses
// are configured by the test. Sources without a configured behavior return a
// NotFoundError.
type Provider struct {
	behaviors map[source.ID]Behavior
	busted    atomic.Int32
	calls     map[source.ID]*atomic.Int32
	canceled  atomic.Int32
	lock      sync.Mutex
	sources   []string
	total     atomic.Int32
}

var (
	_ source.Provider[string] = (*Provider)(nil)
	_ source.Lister           = (*Provider)(nil)
)

func NewProvider() *Provider {
	return &Provider{
		behaviors: make(map[source.ID]Behavior),
		calls:     make(map[source.ID]*atomic.Int32),
	}
}

// Set configures the response for a source id. The id is normalized.
func (p *Provider) Set(id string, b Behavior) *Provider {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.behaviors[source.Normalize(id)] = b
	return p
}

// SetSources sets the list returned by Sources.
func (p *Provider) SetSources(ids ...string) {
	p.lock.Lock()
	p.sources = ids
	p.lock.Unlock()
}

func (p *Provider) Fetch(ctx context.Context, id source.ID) (string, error) {
	p.total.Add(1)
	if source.IsBust(ctx) {
		p.busted.Add(1)
	}
	p.lock.Lock()
	counter, ok := p.calls[id]
	if !ok {
		counter = new(atomic.Int32)
		p.calls[id] = counter
	}
	b, known := p.behaviors[id]
	p.lock.Unlock()
	counter.Add(1)

	if !known {
		return "", &source.NotFoundError{ID: id}
	}

	done := ctx.Done()
	if b.IgnoreCancel {
		done = nil
	}

	if b.Delay != 0 {
		timer := time.NewTimer(b.Delay)
		select {
		case <-timer.C:
		case <-done:
			timer.Stop()
			p.canceled.Add(1)
			return "", ctx.Err()
		}
	}
	if b.Block != nil {
		select {
		case <-b.Block:
		case <-done:
			p.canceled.Add(1)
			return "", ctx.Err()
		}
	}

	if b.Err != nil {
		return "", b.Err
	}
	return b.Payload, nil
}

func (p *Provider) Sources(ctx context.Context) ([]string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.sources...), nil
}

// Calls returns the number of fetches of the given source id.
func (p *Provider) Calls(id string) int {
	p.lock.Lock()
	counter, ok := p.calls[source.Normalize(id)]
	p.lock.Unlock()
	if !ok {
		return 0
	}
	return int(counter.Load())
}

// TotalCalls returns the number of fetches of all sources.
func (p *Provider) TotalCalls() int {
	return int(p.total.Load())
}

// Busted returns the number of fetches asked to bypass upstream caches.
func (p *Provider) Busted() int {
	return int(p.busted.Load())
}

// Canceled returns the number of fetches that ended because their context
// ended.
func (p *Provider) Canceled() int {
	return int(p.canceled.Load())
}
