package quarry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Searcher serves ranked queries against the fragment store.
type Searcher interface {
	// Search returns the topK best fragments for query. mode selects pure
	// vector ranking (ModeSemantic) or RRF-fused vector+keyword ranking
	// (ModeHybrid); alpha in [0,1] weights the vector list (1.0 = vector only).
	Search(ctx context.Context, query string, topK int, mode SearchMode, alpha float64) ([]SearchResult, error)
}

// SearcherOption configures a HybridSearcher.
type SearcherOption func(*searcherConfig)

type searcherConfig struct {
	keyword             KeywordSearcher
	overfetchMultiplier int
	logger              *slog.Logger
}

// WithKeywordSearcher sets an explicit keyword candidate provider. Without
// this option the keyword capability is discovered by type assertion on the
// vector searcher, so a single store that implements both just works.
func WithKeywordSearcher(ks KeywordSearcher) SearcherOption {
	return func(c *searcherConfig) { c.keyword = ks }
}

// WithOverfetchMultiplier sets the candidate oversampling factor. Both source
// lists are fetched at topK * multiplier so fusion has enough overlap to work
// with. Default is 4.
func WithOverfetchMultiplier(n int) SearcherOption {
	return func(c *searcherConfig) { c.overfetchMultiplier = n }
}

// WithLogger sets a structured logger for search operations.
func WithLogger(l *slog.Logger) SearcherOption {
	return func(c *searcherConfig) { c.logger = l }
}

// HybridSearcher combines vector and keyword candidate lists into one ranking
// using Reciprocal Rank Fusion. The two upstream lookups are issued
// concurrently; a keyword failure degrades the request to vector-only
// ranking, while a vector failure fails the request whenever alpha > 0.
type HybridSearcher struct {
	vector    VectorSearcher
	embedding EmbeddingProvider
	cfg       searcherConfig
}

var _ Searcher = (*HybridSearcher)(nil)

// NewHybridSearcher creates a Searcher over the given vector candidate source.
func NewHybridSearcher(vector VectorSearcher, embedding EmbeddingProvider, opts ...SearcherOption) *HybridSearcher {
	cfg := searcherConfig{overfetchMultiplier: 4}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.keyword == nil {
		if ks, ok := vector.(KeywordSearcher); ok {
			cfg.keyword = ks
		}
	}
	return &HybridSearcher{vector: vector, embedding: embedding, cfg: cfg}
}

// Search implements Searcher.
func (h *HybridSearcher) Search(ctx context.Context, query string, topK int, mode SearchMode, alpha float64) ([]SearchResult, error) {
	if topK < 1 {
		return nil, &ErrInvalidParameter{Param: "topK", Reason: fmt.Sprintf("must be >= 1, got %d", topK)}
	}
	if alpha < 0 || alpha > 1 {
		return nil, &ErrInvalidParameter{Param: "alpha", Reason: fmt.Sprintf("must be in [0,1], got %g", alpha)}
	}
	switch mode {
	case ModeSemantic, ModeHybrid:
	default:
		return nil, &ErrInvalidParameter{Param: "mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	fetchK := max(topK*h.cfg.overfetchMultiplier, topK)

	if mode == ModeSemantic {
		vector, err := h.searchVector(ctx, query, fetchK)
		if err != nil {
			return nil, &ErrRetrieval{Source: "vector", Err: err}
		}
		results := make([]SearchResult, 0, min(topK, len(vector)))
		for i, sf := range vector {
			if i == topK {
				break
			}
			results = append(results, SearchResult{
				FragmentID:  sf.ID,
				DocumentID:  sf.DocumentID,
				Content:     sf.Content,
				VectorScore: sf.Score,
				FusedScore:  sf.Score,
				Rank:        i + 1,
			})
		}
		return results, nil
	}

	// Hybrid: fan out both lookups and block on both.
	type listResult struct {
		frags []ScoredFragment
		err   error
	}
	vecCh := make(chan listResult, 1)
	kwCh := make(chan listResult, 1)

	go func() {
		frags, err := h.searchVector(ctx, query, fetchK)
		vecCh <- listResult{frags: frags, err: err}
	}()
	go func() {
		if h.cfg.keyword == nil {
			kwCh <- listResult{}
			return
		}
		frags, err := h.cfg.keyword.SearchFragmentsKeyword(ctx, query, fetchK)
		kwCh <- listResult{frags: frags, err: err}
	}()

	vec, kw := <-vecCh, <-kwCh

	if vec.err != nil {
		if alpha > 0 {
			return nil, &ErrRetrieval{Source: "vector", Err: vec.err}
		}
		// Vector carries no weight; keyword ranking alone serves the request.
		vec.frags = nil
	}
	if kw.err != nil {
		// Degrade to vector-only ranking rather than failing the query.
		if h.cfg.logger != nil {
			h.cfg.logger.Warn("keyword search failed, degrading to vector-only", "err", kw.err)
		}
		kw.frags = nil
	}

	results := reciprocalRankFusion(vec.frags, kw.frags, alpha)
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// searchVector embeds the query and runs the vector lookup.
func (h *HybridSearcher) searchVector(ctx context.Context, query string, fetchK int) ([]ScoredFragment, error) {
	embs, err := h.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("embed query: no embedding returned")
	}
	return h.vector.SearchFragments(ctx, embs[0], fetchK)
}

// --- Reciprocal Rank Fusion ---

// rrfK is the standard RRF smoothing constant. It keeps the top ranks from
// dominating the fused score.
const rrfK = 60

// reciprocalRankFusion merges two best-first candidate lists into a single
// ranking. Each candidate contributes alpha/(k+rank) from the vector list and
// (1-alpha)/(k+rank) from the keyword list, with 1-based ranks; a candidate
// absent from a list contributes nothing for it. Candidates whose fused score
// is zero carry no ranking signal and are dropped, so alpha=1 reduces exactly
// to the vector ordering and alpha=0 to the keyword ordering. Ties are broken
// by fragment ID to keep repeated identical queries stable.
func reciprocalRankFusion(vector, keyword []ScoredFragment, alpha float64) []SearchResult {
	type entry struct {
		frag         Fragment
		vectorScore  float64
		keywordScore float64
		fused        float64
	}
	merged := make(map[string]*entry)
	lookup := func(sf ScoredFragment) *entry {
		e, ok := merged[sf.ID]
		if !ok {
			e = &entry{frag: sf.Fragment}
			merged[sf.ID] = e
		}
		return e
	}

	for rank, sf := range vector {
		e := lookup(sf)
		e.vectorScore = sf.Score
		e.fused += alpha * (1.0 / float64(rrfK+rank+1))
	}
	for rank, sf := range keyword {
		e := lookup(sf)
		e.keywordScore = sf.Score
		e.fused += (1 - alpha) * (1.0 / float64(rrfK+rank+1))
	}

	results := make([]SearchResult, 0, len(merged))
	for _, e := range merged {
		if e.fused <= 0 {
			continue
		}
		results = append(results, SearchResult{
			FragmentID:   e.frag.ID,
			DocumentID:   e.frag.DocumentID,
			Content:      e.frag.Content,
			VectorScore:  e.vectorScore,
			KeywordScore: e.keywordScore,
			FusedScore:   e.fused,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].FragmentID < results[j].FragmentID
	})
	return results
}
