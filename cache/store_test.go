package cache_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pa-hotnews/go-srcagg/cache"
	"github.com/pa-hotnews/go-srcagg/source"
	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	clk := clock.NewMock()
	s := cache.New[string](clk)

	_, ok := s.Get("zhihu")
	require.False(t, ok)

	s.Put("zhihu", "hot list", nil, time.Minute)
	entry, ok := s.Get("zhihu")
	require.True(t, ok)
	require.Equal(t, "hot list", entry.Value)
	require.Equal(t, cache.Success, entry.Outcome)
	require.NoError(t, entry.Err)
	require.Equal(t, source.ID("zhihu"), entry.Key)
	require.Equal(t, clk.Now(), entry.StoredAt)
	require.Equal(t, clk.Now().Add(time.Minute), entry.ExpiresAt)

	// Overwrite.
	s.Put("zhihu", "newer list", nil, time.Minute)
	entry, ok = s.Get("zhihu")
	require.True(t, ok)
	require.Equal(t, "newer list", entry.Value)
	require.Equal(t, 1, s.Len())
}

func TestFailureEntry(t *testing.T) {
	clk := clock.NewMock()
	s := cache.New[string](clk)

	errNet := errors.New("network")
	s.Put("baidu", "ignored", errNet, time.Second)
	entry, ok := s.Get("baidu")
	require.True(t, ok)
	require.Equal(t, cache.Failure, entry.Outcome)
	require.ErrorIs(t, entry.Err, errNet)
	require.Zero(t, entry.Value)
}

func TestTTLAsymmetry(t *testing.T) {
	clk := clock.NewMock()
	s := cache.New[string](clk)
	policy := cache.Policy{
		SuccessTTL: 10 * time.Second,
		FailureTTL: time.Second,
	}

	s.Put("good", "data", nil, policy.TTL(cache.Success))
	s.Put("bad", "", errors.New("down"), policy.TTL(cache.Failure))

	clk.Add(2 * time.Second)
	_, ok := s.Get("bad")
	require.False(t, ok, "failure entry should expire after failure TTL")
	_, ok = s.Get("good")
	require.True(t, ok)

	clk.Add(3 * time.Second) // t=5s
	_, ok = s.Get("good")
	require.True(t, ok, "success entry should still be fresh at 5s")

	clk.Add(6 * time.Second) // t=11s
	_, ok = s.Get("good")
	require.False(t, ok, "success entry should be expired at 11s")
}

func TestExpiresExactlyAtDeadline(t *testing.T) {
	clk := clock.NewMock()
	s := cache.New[int](clk)

	s.Put("a", 1, nil, time.Second)
	clk.Add(time.Second - time.Nanosecond)
	_, ok := s.Get("a")
	require.True(t, ok)
	clk.Add(time.Nanosecond)
	_, ok = s.Get("a")
	require.False(t, ok)

	// Lazy expiry keeps the entry until pruned.
	require.Equal(t, 1, s.Len())
}

func TestPutNonPositiveTTL(t *testing.T) {
	s := cache.New[int](clock.NewMock())

	s.Put("a", 1, nil, time.Minute)
	s.Put("a", 2, nil, 0)
	_, ok := s.Get("a")
	require.False(t, ok)
	require.Zero(t, s.Len())

	s.Put("b", 1, errors.New("fail"), -time.Second)
	_, ok = s.Get("b")
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	s := cache.New[int](clock.NewMock())
	s.Put("a", 1, nil, time.Minute)
	s.Put("b", 2, nil, time.Minute)

	s.Invalidate("a")
	_, ok := s.Get("a")
	require.False(t, ok)
	_, ok = s.Get("b")
	require.True(t, ok)

	// Idempotent.
	s.Invalidate("a")
	s.Invalidate("never-stored")
	require.Equal(t, 1, s.Len())

	s.InvalidateAll()
	require.Zero(t, s.Len())
	_, ok = s.Get("b")
	require.False(t, ok)
}

func TestPrune(t *testing.T) {
	clk := clock.NewMock()
	s := cache.New[int](clk)
	s.Put("short", 1, nil, time.Second)
	s.Put("long", 2, nil, time.Hour)

	require.Zero(t, s.Prune())
	clk.Add(time.Minute)
	require.Equal(t, 1, s.Prune())
	require.Equal(t, 1, s.Len())
	_, ok := s.Get("long")
	require.True(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	s := cache.New[int](nil)
	keys := []source.ID{"a", "b", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := keys[(i+j)%len(keys)]
				switch j % 4 {
				case 0:
					s.Put(key, j, nil, time.Minute)
				case 1:
					s.Get(key)
				case 2:
					s.Invalidate(key)
				default:
					s.Prune()
				}
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, s.Len(), len(keys))
}

func TestPolicy(t *testing.T) {
	p := cache.DefaultPolicy()
	require.Equal(t, cache.DefaultSuccessTTL, p.TTL(cache.Success))
	require.Equal(t, cache.DefaultFailureTTL, p.TTL(cache.Failure))
	require.True(t, p.Caches(cache.Success))
	require.True(t, p.Caches(cache.Failure))

	p = cache.Policy{SuccessTTL: time.Hour}
	require.True(t, p.Caches(cache.Success))
	require.False(t, p.Caches(cache.Failure))

	p = cache.Policy{SuccessTTL: -1, FailureTTL: time.Second}
	require.False(t, p.Caches(cache.Success))
	require.True(t, p.Caches(cache.Failure))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "success", cache.Success.String())
	require.Equal(t, "failure", cache.Failure.String())
	require.Equal(t, "unknown", cache.Outcome(7).String())
}
