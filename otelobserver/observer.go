// Package otelobserver records aggregation engine activity as OpenTelemetry
// metrics.
package otelobserver

import (
	"context"
	"strconv"

	"github.com/pa-hotnews/go-srcagg/aggregator"
	"github.com/pa-hotnews/go-srcagg/source"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pa-hotnews/go-srcagg/otelobserver"

// Metric names.
const (
	OutcomesName      = "srcagg.outcomes"
	LoadingName       = "srcagg.loading"
	FetchDurationName = "srcagg.fetch.duration"
)

// Observer is an aggregator.Observer that records metrics.
type Observer struct {
	outcomes      metric.Int64Counter
	loading       metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

var _ aggregator.Observer = (*Observer)(nil)

// New creates an Observer whose instruments come from mp. If mp is nil, the
// global meter provider is used.
func New(mp metric.MeterProvider) (*Observer, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	outcomes, err := meter.Int64Counter(OutcomesName,
		metric.WithDescription("Resolved source outcomes"),
		metric.WithUnit("{outcome}"))
	if err != nil {
		return nil, err
	}
	loading, err := meter.Int64Counter(LoadingName,
		metric.WithDescription("Sources that started loading from the provider"),
		metric.WithUnit("{source}"))
	if err != nil {
		return nil, err
	}
	fetchDuration, err := meter.Float64Histogram(FetchDurationName,
		metric.WithDescription("Time to resolve a source that was not cached"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Observer{
		outcomes:      outcomes,
		loading:       loading,
		fetchDuration: fetchDuration,
	}, nil
}

// Loading implements aggregator.Observer.
func (o *Observer) Loading(ctx context.Context, id source.ID) {
	o.loading.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(id))))
}

// Outcome implements aggregator.Observer.
func (o *Observer) Outcome(ctx context.Context, r aggregator.Report) {
	o.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(r.ID)),
		attribute.String("state", r.State.String()),
		attribute.String("cached", strconv.FormatBool(r.Cached)),
		attribute.String("reason", r.Reason),
	))
	if !r.Cached {
		o.fetchDuration.Record(ctx, r.Latency.Seconds(), metric.WithAttributes(
			attribute.String("source", string(r.ID)),
			attribute.String("state", r.State.String()),
		))
	}
}
