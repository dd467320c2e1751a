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

// ObservedEmbedding wraps a quarry.EmbeddingProvider with OTEL instrumentation.
type ObservedEmbedding struct {
	inner quarry.EmbeddingProvider
	inst  *Instruments
	model string
}

var _ quarry.EmbeddingProvider = (*ObservedEmbedding)(nil)

// WrapEmbedding returns an instrumented embedding provider.
func WrapEmbedding(inner quarry.EmbeddingProvider, model string, inst *Instruments) *ObservedEmbedding {
	return &ObservedEmbedding{inner: inner, inst: inst, model: model}
}

func (o *ObservedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "embedding.embed", trace.WithAttributes(
		AttrEmbedModel.String(o.model),
		AttrEmbedTextCount.Int(len(texts)),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Embed(ctx, texts)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrEmbedModel.String(o.model),
		attribute.String("status", status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrEmbedModel.String(o.model),
	))

	return result, err
}
