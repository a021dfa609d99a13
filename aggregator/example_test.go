package aggregator_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pa-hotnews/go-srcagg/aggregator"
	"github.com/pa-hotnews/go-srcagg/source"
)

func ExampleEngine_FetchAll() {
	provider := source.ProviderFunc[string](func(ctx context.Context, id source.ID) (string, error) {
		if id == "weibo" {
			return "", source.NewProviderError("network", nil)
		}
		return strings.ToUpper(string(id)) + " headlines", nil
	})

	engine, err := aggregator.New[string](provider, aggregator.WithFailureTTL(5*time.Second))
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ch, err := engine.FetchAll(context.Background(), "Baidu", "weibo", "zhihu")
	if err != nil {
		panic(err)
	}

	// Outcomes arrive in completion order; sort for stable output.
	var lines []string
	for o := range ch {
		if o.OK() {
			lines = append(lines, fmt.Sprintf("%s: %s", o.ID, o.Payload))
		} else {
			lines = append(lines, fmt.Sprintf("%s: failed (%s)", o.ID, o.Reason))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Println(line)
	}

	// Output:
	// baidu: BAIDU headlines
	// weibo: failed (network)
	// zhihu: ZHIHU headlines
}
