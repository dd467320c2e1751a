// Package observer provides OTEL-based observability for ingestion and
// retrieval operations.
//
// It wraps EmbeddingProvider and Searcher with instrumented versions that
// emit traces and metrics via OpenTelemetry. Users export to any
// OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/quarrydocs/quarry/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	DocumentsIngested metric.Int64Counter
	FragmentsProduced metric.Int64Counter
	EmbedRequests     metric.Int64Counter
	SearchRequests    metric.Int64Counter

	// Histograms
	IngestDuration metric.Float64Histogram
	EmbedDuration  metric.Float64Histogram
	SearchDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("quarry")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	documentsIngested, err := meter.Int64Counter("ingest.documents",
		metric.WithDescription("Documents ingested"),
		metric.WithUnit("{document}"))
	if err != nil {
		return nil, err
	}

	fragmentsProduced, err := meter.Int64Counter("ingest.fragments",
		metric.WithDescription("Fragments produced by chunking"),
		metric.WithUnit("{fragment}"))
	if err != nil {
		return nil, err
	}

	embedRequests, err := meter.Int64Counter("embedding.requests",
		metric.WithDescription("Embedding request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	searchRequests, err := meter.Int64Counter("search.requests",
		metric.WithDescription("Search request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram("ingest.duration",
		metric.WithDescription("Document ingestion duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	embedDuration, err := meter.Float64Histogram("embedding.duration",
		metric.WithDescription("Embedding call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram("search.duration",
		metric.WithDescription("Search request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:            tracer,
		Meter:             meter,
		DocumentsIngested: documentsIngested,
		FragmentsProduced: fragmentsProduced,
		EmbedRequests:     embedRequests,
		SearchRequests:    searchRequests,
		IngestDuration:    ingestDuration,
		EmbedDuration:     embedDuration,
		SearchDuration:    searchDuration,
	}, nil
}
