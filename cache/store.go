package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pa-hotnews/go-srcagg/source"
)

// Outcome tells whether a cached entry holds a successful or failed fetch.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Entry is a cached fetch result.
type Entry[V any] struct {
	Key source.ID
	// Value is the fetched payload. It is the zero value for failure entries.
	Value V
	// Err is the fetch error for failure entries.
	Err       error
	Outcome   Outcome
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Fresh returns true if the entry has not expired at time now.
func (e Entry[V]) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Store is a concurrency-safe map of source id to cached fetch result.
type Store[V any] struct {
	clock   clock.Clock
	entries map[source.ID]Entry[V]
	lock    sync.RWMutex
}

// New creates a new Store that uses clk to determine expiration. If clk is
// nil, the system clock is used.
func New[V any](clk clock.Clock) *Store[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Store[V]{
		clock:   clk,
		entries: make(map[source.ID]Entry[V]),
	}
}

// Get returns the entry for key. If there is no entry, or the entry has
// expired, then false is returned.
func (s *Store[V]) Get(key source.ID) (Entry[V], bool) {
	s.lock.RLock()
	entry, ok := s.entries[key]
	s.lock.RUnlock()

	if !ok || !entry.Fresh(s.clock.Now()) {
		return Entry[V]{}, false
	}
	return entry, true
}

// Put stores a fetch result for key, replacing any existing entry, that
// expires after ttl. A non-nil err stores a failure entry. If ttl is not
// positive, then nothing is stored and any existing entry is removed.
func (s *Store[V]) Put(key source.ID, value V, err error, ttl time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if ttl <= 0 {
		delete(s.entries, key)
		return
	}

	now := s.clock.Now()
	entry := Entry[V]{
		Key:       key,
		Outcome:   Success,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err != nil {
		entry.Err = err
		entry.Outcome = Failure
	} else {
		entry.Value = value
	}
	s.entries[key] = entry
}

// Invalidate removes the entry for key. Removing an absent key does nothing.
func (s *Store[V]) Invalidate(key source.ID) {
	s.lock.Lock()
	delete(s.entries, key)
	s.lock.Unlock()
}

// InvalidateAll removes all entries.
func (s *Store[V]) InvalidateAll() {
	s.lock.Lock()
	clear(s.entries)
	s.lock.Unlock()
}

// Len returns the number of stored entries, including expired entries that
// have not yet been pruned.
func (s *Store[V]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.entries)
}

// Prune removes expired entries and returns the number removed.
func (s *Store[V]) Prune() int {
	now := s.clock.Now()

	s.lock.Lock()
	defer s.lock.Unlock()

	var n int
	for key, entry := range s.entries {
		if !entry.Fresh(now) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}
