package quarry

import "context"

// EmbeddingProvider embeds texts into vectors. Supplied by an external
// embedding service and injected at construction; the core never reaches for
// process-wide state.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Tokenizer reports token counts under the embedding model's tokenizer.
// Chunking and quality code treat the counts as opaque integers; when no
// Tokenizer is available the pipeline falls back to a character-length
// heuristic.
type Tokenizer interface {
	CountTokens(texts []string) []int
}

// VectorSearcher returns fragments ranked by vector similarity, best first.
type VectorSearcher interface {
	SearchFragments(ctx context.Context, embedding []float32, topK int) ([]ScoredFragment, error)
}

// KeywordSearcher is an optional capability for full-text keyword search.
// Store implementations that support it can implement this interface;
// callers discover it via type assertion.
type KeywordSearcher interface {
	SearchFragmentsKeyword(ctx context.Context, query string, topK int) ([]ScoredFragment, error)
}

// Store abstracts fragment persistence with vector search.
type Store interface {
	VectorSearcher

	StoreDocument(ctx context.Context, doc Document, fragments []Fragment) error
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, limit int) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
	GetFragmentsByDocument(ctx context.Context, docID string) ([]Fragment, error)

	Init(ctx context.Context) error
	Close() error
}
