// Package telemetry mirrors the engine's per-run statistics as
// OpenTelemetry metric instruments. It never exports anywhere — there is
// no server runtime to ship metrics to — it exists so
// a caller embedding the engine in a long-running process can read
// instrument values out through the standard OTel metric API instead of a
// bespoke struct.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Instruments holds every metric the engine records for one run.
type Instruments struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	meter    metric.Meter

	PairsEvaluated   metric.Int64Counter
	MatchDecisions   metric.Int64Counter
	ReviewDecisions  metric.Int64Counter
	NoMatchDecisions metric.Int64Counter
	ClustersFormed   metric.Int64UpDownCounter
	EMIterations     metric.Int64Counter
	ScoreHistogram   metric.Float64Histogram
}

// New builds a fresh instrument set backed by an in-process manual reader.
// There is no OTLP exporter: this runs as a library inside a batch CLI, not
// a long-lived server, so nothing is there to scrape or push to.
func New() (*Instruments, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("github.com/kanoniv/kanoniv")

	in := &Instruments{provider: provider, reader: reader, meter: meter}

	var err error
	if in.PairsEvaluated, err = meter.Int64Counter("kanoniv.pairs_evaluated"); err != nil {
		return nil, err
	}
	if in.MatchDecisions, err = meter.Int64Counter("kanoniv.decisions.match"); err != nil {
		return nil, err
	}
	if in.ReviewDecisions, err = meter.Int64Counter("kanoniv.decisions.review"); err != nil {
		return nil, err
	}
	if in.NoMatchDecisions, err = meter.Int64Counter("kanoniv.decisions.no_match"); err != nil {
		return nil, err
	}
	if in.ClustersFormed, err = meter.Int64UpDownCounter("kanoniv.clusters_formed"); err != nil {
		return nil, err
	}
	if in.EMIterations, err = meter.Int64Counter("kanoniv.em_iterations"); err != nil {
		return nil, err
	}
	if in.ScoreHistogram, err = meter.Float64Histogram("kanoniv.pair_score"); err != nil {
		return nil, err
	}
	return in, nil
}

// RecordDecision increments the counter matching decision and adds score to
// the histogram, keyed to whatever callers pass ("match", "review",
// "no_match" — see pkg/scorer.Decision).
func (in *Instruments) RecordDecision(ctx context.Context, decision string, score float64) {
	in.PairsEvaluated.Add(ctx, 1)
	in.ScoreHistogram.Record(ctx, score)
	switch decision {
	case "match":
		in.MatchDecisions.Add(ctx, 1)
	case "review":
		in.ReviewDecisions.Add(ctx, 1)
	default:
		in.NoMatchDecisions.Add(ctx, 1)
	}
}

// Collect drains the current instrument values via the manual reader, for
// a caller that wants a point-in-time snapshot without a full exporter
// pipeline.
func (in *Instruments) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := in.reader.Collect(ctx, &rm)
	return rm, err
}
