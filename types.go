package quarry

// --- Domain types ---

// Category classifies a document's normalized content form and selects the
// chunking strategy applied to it.
type Category string

const (
	CategoryDocument     Category = "document"
	CategoryPresentation Category = "presentation"
	CategoryTabular      Category = "tabular"
)

// ChunkType records which chunking strategy produced a fragment.
type ChunkType string

const (
	ChunkProseSection  ChunkType = "prose-section"
	ChunkSlide         ChunkType = "slide"
	ChunkTable         ChunkType = "table"
	ChunkTableRowGroup ChunkType = "table-row-group"
)

// QualityFlag marks a single quality issue on a fragment. Flags are
// independently evaluable; a fragment may carry several at once.
type QualityFlag string

const (
	FlagEmpty     QualityFlag = "EMPTY"
	FlagTooShort  QualityFlag = "TOO_SHORT"
	FlagTooLong   QualityFlag = "TOO_LONG"
	FlagNoContext QualityFlag = "NO_CONTEXT"
	FlagFragment  QualityFlag = "FRAGMENT"
)

// Completeness is the categorical quality label derived from a fragment's
// flag set.
type Completeness string

const (
	CompletenessComplete   Completeness = "complete"
	CompletenessFragment   Completeness = "fragment"
	CompletenessIncomplete Completeness = "incomplete"
	CompletenessWithIssues Completeness = "complete-with-issues"
)

// LocationKind discriminates the Location variant.
type LocationKind string

const (
	LocationHeaderPath LocationKind = "header_path"
	LocationSlides     LocationKind = "slides"
	LocationSheetRows  LocationKind = "sheet_rows"
)

// Location is a strategy-specific position descriptor: a header path for
// prose sections, the contributing slide numbers for presentation fragments,
// or a sheet name plus row range for tabular fragments. Only the fields
// matching Kind are populated.
type Location struct {
	Kind       LocationKind `json:"kind"`
	HeaderPath []string     `json:"header_path,omitempty"`
	Slides     []int        `json:"slides,omitempty"`
	Sheet      string       `json:"sheet,omitempty"`
	RowStart   int          `json:"row_start,omitempty"`
	RowEnd     int          `json:"row_end,omitempty"`
}

// Document is the normalized source text a chunker operates on.
type Document struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Source    string   `json:"source"`
	Content   string   `json:"content"`
	Category  Category `json:"category"`
	CreatedAt int64    `json:"created_at"`
}

// Fragment is a contiguous, quality-scored span of a document's text and the
// unit of retrieval. Fragments are created in bulk by a chunker, mutated only
// by the auto-fix engine during ingestion, then frozen once embedded.
type Fragment struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Content     string    `json:"content"`
	Index       int       `json:"index"`
	CharStart   int       `json:"char_start"`
	CharEnd     int       `json:"char_end"`
	Breadcrumbs []string  `json:"breadcrumbs,omitempty"`
	Location    Location  `json:"location"`
	ChunkType   ChunkType `json:"chunk_type"`

	QualityScore float64       `json:"quality_score"`
	QualityFlags []QualityFlag `json:"quality_flags,omitempty"`
	Completeness Completeness  `json:"completeness"`
	HasTitle     bool          `json:"has_title"`
	TokenCount   int           `json:"token_count"`

	Embedding []float32 `json:"-"`
}

// ScoredFragment is a fragment with a provider-assigned relevance score.
// Vector and keyword searchers both return best-first ordered slices of these.
type ScoredFragment struct {
	Fragment
	Score float64 `json:"score"`
}

// SearchMode selects how a query is ranked.
type SearchMode string

const (
	// ModeSemantic ranks by vector similarity only, bypassing fusion.
	ModeSemantic SearchMode = "semantic"
	// ModeHybrid fuses vector and keyword rankings with RRF.
	ModeHybrid SearchMode = "hybrid"
)

// DefaultAlpha is the fusion weight toward the vector ranking used when a
// caller does not specify one.
const DefaultAlpha = 0.7

// SearchResult is one ranked hit from a query. It is request-scoped and never
// persisted. VectorScore and KeywordScore carry the raw provider scores for
// observability; FusedScore is the RRF score the ranking was sorted by.
type SearchResult struct {
	FragmentID   string  `json:"fragment_id"`
	DocumentID   string  `json:"document_id"`
	Content      string  `json:"content"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	FusedScore   float64 `json:"fused_score"`
	Rank         int     `json:"rank"`
}
