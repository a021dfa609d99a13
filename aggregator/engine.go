package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/channelqueue"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pa-hotnews/go-srcagg/cache"
	"github.com/pa-hotnews/go-srcagg/flight"
	"github.com/pa-hotnews/go-srcagg/source"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log = logging.Logger("srcagg/aggregator")

const tracerName = "github.com/pa-hotnews/go-srcagg/aggregator"

// Engine fetches and caches the data of many independent sources. Create an
// Engine with New. An Engine is safe for concurrent use.
type Engine[P any] struct {
	provider source.Provider[P]
	store    *cache.Store[P]
	policy   cache.Policy
	flights  *flight.Group[source.ID, fetched[P]]

	allowed      map[source.ID]struct{}
	clock        clock.Clock
	fetchTimeout time.Duration
	observers    []Observer
	tracer       trace.Tracer

	needsPrune atomic.Bool
	pruneIn    time.Duration
	pruneTimer *clock.Timer

	// inEvents is used to send outcomes to the distributeEvents goroutine.
	inEvents     chan Outcome[P]
	addEventChan chan chan<- Outcome[P]
	rmEventChan  chan chan<- Outcome[P]

	// closing signals that the Engine is closing.
	closing   chan struct{}
	closeOnce sync.Once
	distDone  chan struct{}
}

// New creates a new Engine that fetches source data from provider.
//
// An invalid configuration returns a *ConfigError.
func New[P any](provider source.Provider[P], options ...Option) (*Engine[P], error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	if err = opts.validate(provider != nil); err != nil {
		return nil, err
	}

	e := &Engine[P]{
		provider: provider,
		store:    cache.New[P](opts.clock),
		policy: cache.Policy{
			SuccessTTL: opts.successTTL,
			FailureTTL: opts.failureTTL,
		},
		flights: flight.New[source.ID, fetched[P]](),

		clock:        opts.clock,
		fetchTimeout: opts.fetchTimeout,
		observers:    opts.observers,
		tracer:       opts.tracerProvider.Tracer(tracerName),
		pruneIn:      opts.pruneIn,

		inEvents:     make(chan Outcome[P]),
		addEventChan: make(chan chan<- Outcome[P]),
		rmEventChan:  make(chan chan<- Outcome[P]),
		closing:      make(chan struct{}),
		distDone:     make(chan struct{}),
	}

	if len(opts.allowed) != 0 {
		e.allowed = make(map[source.ID]struct{}, len(opts.allowed))
		for _, id := range opts.allowed {
			e.allowed[source.Normalize(id)] = struct{}{}
		}
	}

	if opts.pruneIn != 0 {
		e.pruneTimer = opts.clock.AfterFunc(opts.pruneIn, func() {
			e.needsPrune.Store(true)
		})
	}

	go e.distributeEvents()

	log.Debugw("Aggregation engine started", "successTTL", ttlString(opts.successTTL),
		"failureTTL", ttlString(opts.failureTTL), "fetchTimeout", opts.fetchTimeout,
		"allowedSources", len(e.allowed))
	return e, nil
}

// Close stops the engine. Outcome subscription channels are closed. Calls in
// progress are allowed to finish, but no new fetches are accepted.
func (e *Engine[P]) Close() {
	e.closeOnce.Do(func() {
		close(e.closing)
		if e.pruneTimer != nil {
			e.pruneTimer.Stop()
		}
		<-e.distDone
	})
}

func (e *Engine[P]) isClosed() bool {
	select {
	case <-e.closing:
		return true
	default:
	}
	return false
}

// FetchAll fetches the given sources concurrently and returns a channel that
// receives the outcome of each source as soon as it resolves. Source ids are
// case-insensitive and duplicate ids are fetched once. Outcomes are delivered
// in no particular order. The channel is closed once every source has
// resolved.
//
// If ctx ends, sources not yet resolved are abandoned and their outcomes are
// not delivered. Abandoning a source does not affect other callers waiting for
// the same source.
//
// Fetch failures are delivered as Failure outcomes. The only error returned is
// ErrClosed.
func (e *Engine[P]) FetchAll(ctx context.Context, ids ...string) (<-chan Outcome[P], error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	e.maybePrune()

	unique := make([]source.ID, 0, len(ids))
	seen := make(map[source.ID]struct{}, len(ids))
	for _, rawID := range ids {
		id := source.Normalize(rawID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	// Buffered so that no source waits on the reader.
	out := make(chan Outcome[P], len(unique))
	var wg conc.WaitGroup
	for _, id := range unique {
		id := id
		wg.Go(func() {
			outcome, ok := e.resolve(ctx, id, false)
			if !ok {
				return
			}
			out <- outcome
			e.publish(outcome)
		})
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// FetchSources lists the provider's sources and fetches all of them.
func (e *Engine[P]) FetchSources(ctx context.Context) (<-chan Outcome[P], error) {
	ids, err := e.Sources(ctx)
	if err != nil {
		return nil, err
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = string(id)
	}
	return e.FetchAll(ctx, strIDs...)
}

// Get fetches a single source, returning the cached outcome if there is one.
// An error is returned only if the engine is closed or ctx ends before the
// source resolves.
func (e *Engine[P]) Get(ctx context.Context, id string) (Outcome[P], error) {
	if e.isClosed() {
		return Outcome[P]{}, ErrClosed
	}
	e.maybePrune()
	return e.resolveOne(ctx, source.Normalize(id), false)
}

// Refresh discards any cached result for the source and fetches it again. If
// a fetch of the source is already in progress, its result is used. Other
// sources are not affected.
//
// An error is returned only if the engine is closed or ctx ends before the
// source resolves.
func (e *Engine[P]) Refresh(ctx context.Context, id string) (Outcome[P], error) {
	if e.isClosed() {
		return Outcome[P]{}, ErrClosed
	}
	sid := source.Normalize(id)
	e.store.Invalidate(sid)
	log.Debugw("Refreshing source", "source", sid)
	return e.resolveOne(source.WithBust(ctx), sid, true)
}

func (e *Engine[P]) resolveOne(ctx context.Context, id source.ID, bypass bool) (Outcome[P], error) {
	outcome, ok := e.resolve(ctx, id, bypass)
	if !ok {
		return Outcome[P]{}, ctx.Err()
	}
	e.publish(outcome)
	return outcome, nil
}

// Invalidate removes any cached result for the source, so that the next fetch
// calls the provider.
func (e *Engine[P]) Invalidate(id string) {
	e.store.Invalidate(source.Normalize(id))
}

// InvalidateAll removes all cached results.
func (e *Engine[P]) InvalidateAll() {
	e.store.InvalidateAll()
	log.Info("Invalidated all cached sources")
}

// Waiting returns the number of callers waiting for an in-progress fetch of
// the source.
func (e *Engine[P]) Waiting(id string) int {
	return e.flights.Waiters(source.Normalize(id))
}

// Len returns the number of cached results, including expired results not yet
// pruned.
func (e *Engine[P]) Len() int {
	return e.store.Len()
}

// Sources returns the normalized ids of the sources that the provider serves,
// limited to the allowed sources if those are configured. Returns ErrNoLister
// if the provider does not implement source.Lister.
func (e *Engine[P]) Sources(ctx context.Context) ([]source.ID, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	lister, ok := e.provider.(source.Lister)
	if !ok {
		return nil, ErrNoLister
	}
	names, err := lister.Sources(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]source.ID, 0, len(names))
	seen := make(map[source.ID]struct{}, len(names))
	for _, name := range names {
		id := source.Normalize(name)
		if !id.Valid() || !e.isAllowed(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// OnOutcome creates a channel that receives the outcome of every source
// resolved by any caller of this engine.
//
// Calling the returned cancel function stops delivery and closes the channel.
// The channel is also closed when the engine is closed.
func (e *Engine[P]) OnOutcome() (<-chan Outcome[P], context.CancelFunc) {
	// Unbounded queue so that delivery never blocks on a slow reader.
	cq := channelqueue.New[Outcome[P]](-1)
	ch := cq.In()

	select {
	case e.addEventChan <- ch:
	case <-e.closing:
		close(ch)
		return cq.Out(), func() {}
	}

	var once sync.Once
	cncl := func() {
		once.Do(func() {
			select {
			case e.rmEventChan <- ch:
			case <-e.closing:
			}
		})
	}
	return cq.Out(), cncl
}

func (e *Engine[P]) isAllowed(id source.ID) bool {
	if e.allowed == nil {
		return true
	}
	_, ok := e.allowed[id]
	return ok
}

// resolve produces the outcome for one source. If ctx ends before the source
// resolves, then false is returned.
func (e *Engine[P]) resolve(ctx context.Context, id source.ID, bypass bool) (Outcome[P], bool) {
	start := e.clock.Now()

	if !id.Valid() {
		outcome := e.failure(id, source.NewProviderError(source.ReasonInvalid, errors.New("empty source id")))
		e.notifyOutcome(ctx, outcome)
		return outcome, true
	}
	if !e.isAllowed(id) {
		outcome := e.failure(id, &source.NotFoundError{ID: id})
		e.notifyOutcome(ctx, outcome)
		return outcome, true
	}

	if !bypass {
		if entry, ok := e.store.Get(id); ok {
			outcome := e.fromEntry(entry)
			outcome.Latency = e.clock.Since(start)
			log.Debugw("Source served from cache", "source", id, "state", outcome.State)
			e.notifyOutcome(ctx, outcome)
			return outcome, true
		}
	}

	for _, obs := range e.observers {
		obs.Loading(ctx, id)
	}

	call := e.flights.Obtain(ctx, id, func(callCtx context.Context) (fetched[P], error) {
		// A call that finished after the cache check above may have stored
		// a result.
		if !bypass {
			if entry, ok := e.store.Get(id); ok {
				return fetched[P]{payload: entry.Value, cached: true}, entry.Err
			}
		}
		payload, err := e.fetchAndStore(callCtx, id)
		return fetched[P]{payload: payload}, err
	})
	res, err := call.Wait(ctx)
	if ctx.Err() != nil {
		log.Debugw("Stopped waiting for source", "source", id, "err", ctx.Err())
		return Outcome[P]{}, false
	}

	var outcome Outcome[P]
	if err != nil {
		outcome = e.failure(id, err)
	} else {
		outcome = Outcome[P]{
			ID:      id,
			State:   Success,
			Payload: res.payload,
		}
	}
	outcome.Cached = res.cached
	outcome.Shared = call.Shared()
	outcome.Latency = e.clock.Since(start)
	e.notifyOutcome(ctx, outcome)
	return outcome, true
}

// fetchAndStore calls the provider and caches the result according to the
// cache policy. This runs once per provider call, regardless of how many
// callers are waiting on it.
func (e *Engine[P]) fetchAndStore(ctx context.Context, id source.ID) (P, error) {
	fetchCtx := ctx
	if e.fetchTimeout != 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	fetchCtx, span := e.tracer.Start(fetchCtx, "srcagg.fetch",
		trace.WithAttributes(attribute.String("source.id", string(id))))
	defer span.End()

	// A provider that ignores its context is not waited for past the deadline.
	resCh := make(chan fetchResult[P], 1)
	go func() {
		var res fetchResult[P]
		var pc panics.Catcher
		pc.Try(func() {
			res.payload, res.err = e.provider.Fetch(fetchCtx, id)
		})
		if r := pc.Recovered(); r != nil {
			res.err = source.NewProviderError(source.ReasonPanic, r.AsError())
		}
		resCh <- res
	}()

	var payload P
	var err error
	select {
	case res := <-resCh:
		payload, err = res.payload, res.err
	case <-fetchCtx.Done():
		err = fetchCtx.Err()
	}

	if err != nil {
		var zero P
		payload = zero

		if ctx.Err() != nil {
			// Every waiter is gone. Do not cache a result nobody asked for.
			span.SetStatus(codes.Error, source.ReasonCanceled)
			log.Debugw("Abandoned fetch canceled", "source", id)
			return payload, err
		}
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			err = source.NewProviderError(source.ReasonTimeout, err)
		}
		reason := source.ReasonOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		log.Errorw("Cannot fetch source", "source", id, "reason", reason, "err", err)
	}

	outcome := cache.Success
	if err != nil {
		outcome = cache.Failure
	}
	if !e.policy.Caches(outcome) {
		log.Debugw("Not caching result", "source", id, "outcome", outcome)
		return payload, err
	}
	e.store.Put(id, payload, err, e.policy.TTL(outcome))
	return payload, err
}

// fetched is the result of a shared call. cached is true when the result was
// read from the cache instead of the provider.
type fetched[P any] struct {
	payload P
	cached  bool
}

type fetchResult[P any] struct {
	payload P
	err     error
}

func (e *Engine[P]) failure(id source.ID, err error) Outcome[P] {
	reason := source.ReasonOf(err)
	if errors.Is(err, flight.ErrPanicked) {
		reason = source.ReasonPanic
	}
	return Outcome[P]{
		ID:     id,
		State:  Failure,
		Err:    err,
		Reason: reason,
	}
}

func (e *Engine[P]) fromEntry(entry cache.Entry[P]) Outcome[P] {
	var outcome Outcome[P]
	if entry.Outcome == cache.Failure {
		outcome = e.failure(entry.Key, entry.Err)
	} else {
		outcome = Outcome[P]{
			ID:      entry.Key,
			State:   Success,
			Payload: entry.Value,
		}
	}
	outcome.Cached = true
	return outcome
}

func (e *Engine[P]) notifyOutcome(ctx context.Context, outcome Outcome[P]) {
	if len(e.observers) == 0 {
		return
	}
	r := outcome.Report()
	for _, obs := range e.observers {
		obs.Outcome(ctx, r)
	}
}

// publish sends an outcome to OnOutcome subscribers.
func (e *Engine[P]) publish(outcome Outcome[P]) {
	select {
	case e.inEvents <- outcome:
	case <-e.closing:
	}
}

// distributeEvents delivers outcomes to all OnOutcome subscribers.
func (e *Engine[P]) distributeEvents() {
	defer close(e.distDone)

	eventChans := make(map[chan<- Outcome[P]]struct{})
	for {
		select {
		case outcome := <-e.inEvents:
			for ch := range eventChans {
				ch <- outcome
			}
		case ch := <-e.addEventChan:
			eventChans[ch] = struct{}{}
		case ch := <-e.rmEventChan:
			if _, ok := eventChans[ch]; ok {
				delete(eventChans, ch)
				close(ch)
			}
		case <-e.closing:
			for ch := range eventChans {
				close(ch)
			}
			return
		}
	}
}

// maybePrune starts removal of expired cache entries if the prune interval
// has elapsed.
func (e *Engine[P]) maybePrune() {
	if e.pruneTimer == nil || !e.needsPrune.CompareAndSwap(true, false) {
		return
	}
	go func() {
		n := e.store.Prune()
		if n != 0 {
			log.Debugw("Pruned expired cache entries", "count", n)
		}
		if !e.isClosed() {
			e.pruneTimer.Reset(e.pruneIn)
		}
	}()
}
