package aggregator_test

import (
	"testing"
	"time"

	"github.com/pa-hotnews/go-srcagg/aggregator"
	"github.com/pa-hotnews/go-srcagg/internal/test"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := aggregator.LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.SuccessTTL)
	require.Equal(t, 30*time.Second, cfg.FailureTTL)
	require.Equal(t, 10*time.Second, cfg.FetchTimeout)
	require.Equal(t, 5*time.Minute, cfg.PruneInterval)
	require.Empty(t, cfg.AllowedSources)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SRCAGG_SUCCESS_TTL", "1m")
	t.Setenv("SRCAGG_FAILURE_TTL", "-1s")
	t.Setenv("SRCAGG_FETCH_TIMEOUT", "2s")
	t.Setenv("SRCAGG_PRUNE_INTERVAL", "0s")
	t.Setenv("SRCAGG_ALLOWED_SOURCES", "baidu,zhihu")

	cfg, err := aggregator.LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, time.Minute, cfg.SuccessTTL)
	require.Equal(t, -time.Second, cfg.FailureTTL)
	require.Equal(t, 2*time.Second, cfg.FetchTimeout)
	require.Zero(t, cfg.PruneInterval)
	require.Equal(t, []string{"baidu", "zhihu"}, cfg.AllowedSources)

	p := test.NewProvider().
		Set("baidu", test.Behavior{Payload: "B"}).
		Set("weibo", test.Behavior{Payload: "W"})
	e := newEngine(t, p, cfg.Options()...)

	outcomes := fetchAll(t, e, "baidu", "weibo")
	require.True(t, outcomes["baidu"].OK())
	require.False(t, outcomes["weibo"].OK())
	require.Zero(t, p.Calls("weibo"))
}

func TestLoadConfigBadValue(t *testing.T) {
	t.Setenv("SRCAGG_SUCCESS_TTL", "soon")
	_, err := aggregator.LoadConfigFromEnv()
	require.ErrorContains(t, err, "parse env")
}
