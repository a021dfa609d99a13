package aggregator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pa-hotnews/go-srcagg/aggregator"
	"github.com/pa-hotnews/go-srcagg/internal/test"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestFetchSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p := test.NewProvider().
		Set("a", test.Behavior{Payload: "A"}).
		Set("b", test.Behavior{Err: errors.New("boom")})
	e := newEngine(t, p, aggregator.WithTracerProvider(tp))

	fetchAll(t, e, "a", "b")
	// Cache hits do not call the provider, so they have no span.
	fetchAll(t, e, "a", "b")

	spans := sr.Ended()
	require.Len(t, spans, 2)

	byID := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range spans {
		require.Equal(t, "srcagg.fetch", span.Name())
		for _, kv := range span.Attributes() {
			if kv.Key == attribute.Key("source.id") {
				byID[kv.Value.AsString()] = span
			}
		}
	}
	require.Len(t, byID, 2)
	require.Equal(t, codes.Unset, byID["a"].Status().Code)
	require.Equal(t, codes.Error, byID["b"].Status().Code)
	require.Equal(t, "boom", byID["b"].Status().Description)
	require.NotEmpty(t, byID["b"].Events())
}
