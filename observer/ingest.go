package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
)

// Ingestor is the ingestion surface the observer instruments. chunk.Ingestor
// satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, doc quarry.Document) (chunk.IngestResult, error)
}

// ObservedIngestor wraps an Ingestor with OTEL instrumentation.
type ObservedIngestor struct {
	inner Ingestor
	inst  *Instruments
}

var _ Ingestor = (*ObservedIngestor)(nil)

// WrapIngestor returns an instrumented ingestor.
func WrapIngestor(inner Ingestor, inst *Instruments) *ObservedIngestor {
	return &ObservedIngestor{inner: inner, inst: inst}
}

func (o *ObservedIngestor) Ingest(ctx context.Context, doc quarry.Document) (chunk.IngestResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "ingest.document", trace.WithAttributes(
		AttrDocumentCategory.String(string(doc.Category)),
		AttrDocumentSource.String(doc.Source),
	))
	defer span.End()
	start := time.Now()

	res, err := o.inner.Ingest(ctx, doc)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrFragmentCount.Int(res.FragmentCount))
	}

	attrs := metric.WithAttributes(
		AttrDocumentCategory.String(string(doc.Category)),
		attribute.String("status", status),
	)
	o.inst.DocumentsIngested.Add(ctx, 1, attrs)
	if err == nil {
		o.inst.FragmentsProduced.Add(ctx, int64(res.FragmentCount), attrs)
	}
	o.inst.IngestDuration.Record(ctx, durationMs, attrs)

	return res, err
}
