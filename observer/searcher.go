package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	quarry "github.com/quarrydocs/quarry"
)

// ObservedSearcher wraps a quarry.Searcher with OTEL instrumentation.
type ObservedSearcher struct {
	inner quarry.Searcher
	inst  *Instruments
}

var _ quarry.Searcher = (*ObservedSearcher)(nil)

// WrapSearcher returns an instrumented searcher.
func WrapSearcher(inner quarry.Searcher, inst *Instruments) *ObservedSearcher {
	return &ObservedSearcher{inner: inner, inst: inst}
}

func (o *ObservedSearcher) Search(ctx context.Context, query string, topK int, mode quarry.SearchMode, alpha float64) ([]quarry.SearchResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "search", trace.WithAttributes(
		AttrSearchMode.String(string(mode)),
		AttrSearchTopK.Int(topK),
		AttrSearchAlpha.Float64(alpha),
	))
	defer span.End()
	start := time.Now()

	results, err := o.inner.Search(ctx, query, topK, mode, alpha)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrResultCount.Int(len(results)))
	}

	o.inst.SearchRequests.Add(ctx, 1, metric.WithAttributes(
		AttrSearchMode.String(string(mode)),
		attribute.String("status", status),
	))
	o.inst.SearchDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrSearchMode.String(string(mode)),
	))

	return results, err
}
