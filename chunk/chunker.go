// Package chunk turns normalized document text into retrieval fragments.
// Each content category gets its own strategy: heading-based sections for
// prose documents, marker-delimited slide groups for presentations, and
// row groups or whole tables for tabular sheets.
package chunk

import (
	quarry "github.com/quarrydocs/quarry"
)

// Chunker splits a document's normalized text into fragments. Implementations
// fill Content, Index, CharStart, CharEnd, Breadcrumbs, Location, and
// ChunkType; identity, quality, and embedding fields are assigned downstream
// by the pipeline.
type Chunker interface {
	Chunk(text string) ([]quarry.Fragment, error)
}

// Option configures a chunker implementation.
type Option func(*config)

type config struct {
	maxChars      int
	overlapChars  int
	minSlideChars int
	rowsPerGroup  int
}

func defaultConfig() config {
	return config{
		maxChars:      1000,
		overlapChars:  200,
		minSlideChars: 200,
		rowsPerGroup:  20,
	}
}

// WithMaxChars sets the per-fragment size cap for prose sections, in bytes
// (default 1000). Sections over the cap are split recursively with overlap;
// cuts never land inside a multibyte rune.
func WithMaxChars(n int) Option {
	return func(c *config) { c.maxChars = n }
}

// WithOverlapChars sets the overlap carried between consecutive fragments of
// an oversized section, in bytes (default 200).
func WithOverlapChars(n int) Option {
	return func(c *config) { c.overlapChars = n }
}

// WithMinSlideChars sets the minimum accumulated size of a slide group, in
// bytes (default 200). Consecutive slides are grouped until the threshold is
// met.
func WithMinSlideChars(n int) Option {
	return func(c *config) { c.minSlideChars = n }
}

// WithRowsPerGroup sets how many sentence-style rows a tabular fragment
// carries (default 20).
func WithRowsPerGroup(n int) Option {
	return func(c *config) { c.rowsPerGroup = n }
}

// ForCategory returns the chunking strategy registered for a category, or
// ErrUnsupportedCategory for a category with no strategy.
func ForCategory(cat quarry.Category, opts ...Option) (Chunker, error) {
	switch cat {
	case quarry.CategoryDocument:
		return NewDocumentChunker(opts...), nil
	case quarry.CategoryPresentation:
		return NewPresentationChunker(opts...), nil
	case quarry.CategoryTabular:
		return NewTabularChunker(opts...), nil
	default:
		return nil, &quarry.ErrUnsupportedCategory{Category: cat}
	}
}
