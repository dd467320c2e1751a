package chunk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	quarry "github.com/quarrydocs/quarry"
)

// IngestResult holds the outcome of one document's ingestion.
type IngestResult struct {
	DocumentID    string
	FragmentCount int
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithPipeline replaces the processing pipeline.
func WithPipeline(p *Pipeline) IngestorOption {
	return func(ing *Ingestor) { ing.pipeline = p }
}

// WithBatchSize sets how many fragments are embedded per provider call
// (default 64).
func WithBatchSize(n int) IngestorOption {
	return func(ing *Ingestor) { ing.batchSize = n }
}

// WithWorkers sets the worker pool size for IngestAll (default 4).
func WithWorkers(n int) IngestorOption {
	return func(ing *Ingestor) { ing.workers = n }
}

// WithIngestLogger sets a structured logger for ingestion.
func WithIngestLogger(l *slog.Logger) IngestorOption {
	return func(ing *Ingestor) { ing.logger = l }
}

// Ingestor provides end-to-end ingestion: chunk, repair, embed, store.
type Ingestor struct {
	store     quarry.Store
	embedding quarry.EmbeddingProvider
	pipeline  *Pipeline
	batchSize int
	workers   int
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor with sensible defaults.
func NewIngestor(store quarry.Store, emb quarry.EmbeddingProvider, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		store:     store,
		embedding: emb,
		pipeline:  NewPipeline(),
		batchSize: 64,
		workers:   4,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// Ingest processes one document and stores it together with its embedded
// fragments. A missing document ID and timestamp are assigned here.
func (ing *Ingestor) Ingest(ctx context.Context, doc quarry.Document) (IngestResult, error) {
	if doc.ID == "" {
		doc.ID = quarry.NewID()
	}
	if doc.CreatedAt == 0 {
		doc.CreatedAt = quarry.NowUnix()
	}

	frags, err := ing.pipeline.Process(doc)
	if err != nil {
		return IngestResult{}, err
	}

	if err := ing.batchEmbed(ctx, frags); err != nil {
		return IngestResult{}, err
	}

	if err := ing.store.StoreDocument(ctx, doc, frags); err != nil {
		return IngestResult{}, fmt.Errorf("store: %w", err)
	}

	ing.logger.Info("document ingested", "doc_id", doc.ID, "fragments", len(frags))
	return IngestResult{DocumentID: doc.ID, FragmentCount: len(frags)}, nil
}

// IngestAll ingests documents concurrently over a bounded worker pool. Every
// document is attempted; per-document failures are collected and returned
// joined, with the result slice parallel to docs.
func (ing *Ingestor) IngestAll(ctx context.Context, docs []quarry.Document) ([]IngestResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	results := make([]IngestResult, len(docs))
	errs := make([]error, len(docs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(ing.workers, len(docs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := ing.Ingest(ctx, docs[i])
				results[i] = res
				if err != nil {
					errs[i] = fmt.Errorf("ingest %q: %w", docs[i].Title, err)
				}
			}
		}()
	}

dispatch:
	for i := range docs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(docs); j++ {
				errs[j] = ctx.Err()
			}
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return results, errors.Join(errs...)
}

// batchEmbed embeds fragment contents in batches of ing.batchSize.
func (ing *Ingestor) batchEmbed(ctx context.Context, frags []quarry.Fragment) error {
	for i := 0; i < len(frags); i += ing.batchSize {
		end := min(i+ing.batchSize, len(frags))
		batch := frags[i:end]

		texts := make([]string, len(batch))
		for j, f := range batch {
			texts[j] = f.Content
		}

		embeddings, err := ing.embedding.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		for j := range batch {
			if j < len(embeddings) {
				frags[i+j].Embedding = embeddings[j]
			}
		}
	}
	return nil
}
