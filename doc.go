// Package quarry turns normalized document text into retrievable,
// quality-scored knowledge fragments and serves queries against the
// fragment store with fused vector+keyword ranking.
//
// The ingestion side splits a document with a category-specific chunking
// strategy, scores every fragment against a fixed quality rule set, and
// repairs low-quality fragments with a bounded auto-fix loop:
//
//	doc := quarry.Document{Content: markdown, Category: quarry.CategoryDocument}
//	pipeline := chunk.NewPipeline()
//	fragments, err := pipeline.Process(doc)
//
// The query side fuses independently-ranked vector and keyword candidate
// lists with Reciprocal Rank Fusion:
//
//	store := sqlite.New("quarry.db")
//	searcher := quarry.NewHybridSearcher(store, embedder)
//	results, err := searcher.Search(ctx, "setup guide", 10, quarry.ModeHybrid, 0.7)
//
// # Core Interfaces
//
//   - [Store] — fragment persistence with vector search
//   - [VectorSearcher], [KeywordSearcher] — the two ranked candidate providers
//   - [EmbeddingProvider] — text-to-vector embedding (external)
//   - [Tokenizer] — token counting under the embedding model (external)
//   - [Searcher] — query entry point implemented by HybridSearcher
//
// # Included Implementations
//
// Chunking: chunk (document, presentation, tabular strategies + pipeline).
// Quality: quality (analyzer + auto-fix engine).
// Storage: store/sqlite (local, FTS5), store/postgres (pgvector), store/qdrantindex (vector only).
// Normalization adapters: normalize (markdown, HTML, PDF, CSV).
//
// See cmd/quarryd for the HTTP server and cmd/quarry for the CLI.
package quarry
