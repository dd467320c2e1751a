package chunk

import (
	"context"
	"errors"
	"log/slog"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/quality"
)

// nopLogger is a logger that discards all output. Used when no logger option is set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFixer replaces the quality repair engine.
func WithFixer(fx *quality.Fixer) PipelineOption {
	return func(p *Pipeline) { p.fixer = fx }
}

// WithTokenizer sets the tokenizer used for fragment token counts. Without
// one, counts fall back to a chars/4 estimate.
func WithTokenizer(t quarry.Tokenizer) PipelineOption {
	return func(p *Pipeline) { p.tokenizer = t }
}

// WithPipelineLogger sets a structured logger for pipeline operations.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithChunkerOptions sets the options passed to every chunker the pipeline
// constructs.
func WithChunkerOptions(opts ...Option) PipelineOption {
	return func(p *Pipeline) { p.chunkOpts = opts }
}

// Pipeline runs category-routed chunking followed by quality repair, then
// stamps fragment identity and token counts. It is safe for concurrent use.
type Pipeline struct {
	fixer     *quality.Fixer
	tokenizer quarry.Tokenizer
	logger    *slog.Logger
	chunkOpts []Option
}

// NewPipeline creates a Pipeline with the given options.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fixer:  quality.NewFixer(),
		logger: nopLogger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process chunks one document into repaired, quality-scored fragments. An
// unknown category is chunked with the document strategy rather than failing
// the whole ingestion; structurally invalid content (an empty document)
// still returns ErrChunking.
func (p *Pipeline) Process(doc quarry.Document) ([]quarry.Fragment, error) {
	chunker, err := ForCategory(doc.Category, p.chunkOpts...)
	if err != nil {
		var unsupported *quarry.ErrUnsupportedCategory
		if !errors.As(err, &unsupported) {
			return nil, err
		}
		p.logger.Warn("unknown category, using document strategy",
			"category", doc.Category, "doc_id", doc.ID)
		chunker = NewDocumentChunker(p.chunkOpts...)
	}

	frags, err := chunker.Chunk(doc.Content)
	if err != nil {
		return nil, err
	}

	frags = p.fixer.Fix(frags)

	texts := make([]string, len(frags))
	for i := range frags {
		if frags[i].ID == "" {
			frags[i].ID = quarry.NewID()
		}
		frags[i].DocumentID = doc.ID
		frags[i].Index = i
		texts[i] = frags[i].Content
	}

	if p.tokenizer != nil {
		counts := p.tokenizer.CountTokens(texts)
		for i := range frags {
			if i < len(counts) {
				frags[i].TokenCount = counts[i]
			}
		}
	} else {
		for i := range frags {
			frags[i].TokenCount = (len(frags[i].Content) + 3) / 4
		}
	}

	p.logger.Debug("document processed", "doc_id", doc.ID, "category", doc.Category, "fragments", len(frags))
	return frags, nil
}
