// Package flight collapses concurrent calls for the same key into a single
// in-flight call whose result is shared by every caller.
//
// Ownership of an in-flight call is shared by its waiters. A waiter whose
// context ends stops waiting, but the call keeps running for the remaining
// waiters. Only when every waiter has stopped waiting is the call's context
// canceled. The call is then forgotten, so that the next caller for the key
// starts a new call instead of joining an abandoned one.
//
// A call is never retried. When it finishes, the result is handed to all
// current waiters and the key is cleared, so that a later caller starts a new
// call.
package flight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sourcegraph/conc/panics"
)

var log = logging.Logger("srcagg/flight")

// ErrPanicked is wrapped by the error returned from a call whose function
// panicked.
var ErrPanicked = errors.New("call panicked")

// Group manages in-flight calls, keyed by K, that produce values of type V.
// The zero value is not usable; create a Group with New.
type Group[K comparable, V any] struct {
	calls map[K]*Call[V]
	lock  sync.Mutex
}

// Call is an in-flight or completed call.
type Call[V any] struct {
	done   chan struct{}
	val    V
	err    error
	cancel context.CancelFunc

	// Number of callers that obtained this call.
	joined atomic.Int32

	// Guarded by the owning Group's lock.
	waiters int
	settled bool

	// release is called once by each waiter when it stops waiting.
	release func(detached bool)
}

// New creates a new Group.
func New[K comparable, V any]() *Group[K, V] {
	return &Group[K, V]{
		calls: make(map[K]*Call[V]),
	}
}

// Obtain returns the in-flight call for key, or if there is none, starts fn
// in a new goroutine and returns its call. Each Obtain registers the caller as
// a waiter, and must be followed by exactly one Wait on the returned Call.
//
// The context passed to fn carries the values of ctx, but is not canceled by
// ctx. It is canceled only when all waiters have stopped waiting before the
// call finished.
func (g *Group[K, V]) Obtain(ctx context.Context, key K, fn func(context.Context) (V, error)) *Call[V] {
	g.lock.Lock()
	defer g.lock.Unlock()

	if c, ok := g.calls[key]; ok {
		c.waiters++
		c.joined.Add(1)
		return c
	}

	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Call[V]{
		done:    make(chan struct{}),
		cancel:  cancel,
		waiters: 1,
	}
	c.joined.Store(1)
	c.release = func(detached bool) {
		g.lock.Lock()
		defer g.lock.Unlock()
		c.waiters--
		if !detached || c.waiters != 0 || c.settled {
			return
		}
		// Every waiter is gone. Forget the call so the next caller starts a
		// new one, and tell the function to stop.
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		log.Debugw("All waiters left in-flight call, canceling", "key", key)
		c.cancel()
	}
	g.calls[key] = c

	go g.run(callCtx, key, c, fn)
	return c
}

// Do obtains the call for key, waits for its result, and reports whether the
// result was shared with another caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error, bool) {
	c := g.Obtain(ctx, key, fn)
	val, err := c.Wait(ctx)
	return val, err, c.Shared()
}

// InFlight returns the number of keys that have a call in flight.
func (g *Group[K, V]) InFlight() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.calls)
}

// Waiters returns the number of callers currently waiting on the in-flight
// call for key.
func (g *Group[K, V]) Waiters(key K) int {
	g.lock.Lock()
	defer g.lock.Unlock()
	c, ok := g.calls[key]
	if !ok {
		return 0
	}
	return c.waiters
}

func (g *Group[K, V]) run(ctx context.Context, key K, c *Call[V], fn func(context.Context) (V, error)) {
	defer c.cancel()

	var val V
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		val, err = fn(ctx)
	})
	if r := pc.Recovered(); r != nil {
		log.Errorw("In-flight call panicked", "key", key, "panic", r.Value)
		var zero V
		val = zero
		err = fmt.Errorf("%w: %w", ErrPanicked, r.AsError())
	}

	g.lock.Lock()
	c.val = val
	c.err = err
	c.settled = true
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	g.lock.Unlock()

	close(c.done)
}

// Wait waits for the call to finish and returns its result. If ctx ends
// first, this waiter is detached and ctx.Err() is returned; the call is not
// affected unless this was the last waiter.
func (c *Call[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-c.done:
		c.release(false)
		return c.val, c.err
	default:
	}

	select {
	case <-c.done:
		c.release(false)
		return c.val, c.err
	case <-ctx.Done():
		c.release(true)
		var zero V
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed when the call finishes.
func (c *Call[V]) Done() <-chan struct{} {
	return c.done
}

// Shared returns true if more than one caller has obtained this call.
func (c *Call[V]) Shared() bool {
	return c.joined.Load() > 1
}
