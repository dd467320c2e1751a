// Package postgres implements quarry.Store using PostgreSQL with pgvector
// for native vector similarity search and tsvector for full-text keyword
// search.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	quarry "github.com/quarrydocs/quarry"
)

// Store implements quarry.Store backed by PostgreSQL with pgvector.
// Vector search uses HNSW indexes with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// better index optimization and catching dimension mismatches at insert time.
// Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate list
// size). Higher values improve recall at the cost of latency. Default:
// pgvector's 40. Applied during Init().
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

var _ quarry.Store = (*Store)(nil)
var _ quarry.KeywordSearcher = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all required tables, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fragments (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			frag_index INTEGER NOT NULL,
			char_start INTEGER NOT NULL,
			char_end INTEGER NOT NULL,
			breadcrumbs JSONB,
			location JSONB,
			chunk_type TEXT NOT NULL,
			quality_score DOUBLE PRECISION NOT NULL,
			quality_flags JSONB,
			completeness TEXT NOT NULL,
			has_title BOOLEAN NOT NULL DEFAULT FALSE,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding %s
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS fragments_document_idx ON fragments(document_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS fragments_embedding_idx ON fragments USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),
		`CREATE INDEX IF NOT EXISTS fragments_fts_idx ON fragments USING gin(to_tsvector('english', content))`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}

	return nil
}

// StoreDocument inserts a document and all its fragments in a single
// transaction, replacing any previous fragment set for the same document.
func (s *Store) StoreDocument(ctx context.Context, doc quarry.Document, fragments []quarry.Fragment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, title, source, content, category, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   source = EXCLUDED.source,
		   content = EXCLUDED.content,
		   category = EXCLUDED.category,
		   created_at = EXCLUDED.created_at`,
		doc.ID, doc.Title, doc.Source, doc.Content, string(doc.Category), doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert document: %w", err)
	}

	// Re-ingesting replaces the old fragment set wholesale.
	if _, err := tx.Exec(ctx, `DELETE FROM fragments WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("postgres: clear fragments: %w", err)
	}

	for _, f := range fragments {
		crumbs := marshalJSON(f.Breadcrumbs)
		location := marshalJSON(f.Location)
		flags := marshalJSON(f.QualityFlags)

		if len(f.Embedding) > 0 {
			embStr := serializeEmbedding(f.Embedding)
			_, err = tx.Exec(ctx,
				`INSERT INTO fragments (id, document_id, content, frag_index, char_start, char_end,
					breadcrumbs, location, chunk_type, quality_score, quality_flags, completeness,
					has_title, token_count, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11::jsonb, $12, $13, $14, $15::vector)`,
				f.ID, f.DocumentID, f.Content, f.Index, f.CharStart, f.CharEnd,
				crumbs, location, string(f.ChunkType), f.QualityScore, flags, string(f.Completeness),
				f.HasTitle, f.TokenCount, embStr)
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO fragments (id, document_id, content, frag_index, char_start, char_end,
					breadcrumbs, location, chunk_type, quality_score, quality_flags, completeness,
					has_title, token_count, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11::jsonb, $12, $13, $14, NULL)`,
				f.ID, f.DocumentID, f.Content, f.Index, f.CharStart, f.CharEnd,
				crumbs, location, string(f.ChunkType), f.QualityScore, flags, string(f.Completeness),
				f.HasTitle, f.TokenCount)
		}
		if err != nil {
			return fmt.Errorf("postgres: insert fragment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// GetDocument returns a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (quarry.Document, error) {
	var d quarry.Document
	var category string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, source, content, category, created_at FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Title, &d.Source, &d.Content, &category, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return quarry.Document{}, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		return quarry.Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	d.Category = quarry.Category(category)
	return d, nil
}

// ListDocuments returns all documents ordered by most recently created first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]quarry.Document, error) {
	query := `SELECT id, title, source, content, category, created_at
	 FROM documents ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []quarry.Document
	for rows.Next() {
		var d quarry.Document
		var category string
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &category, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		d.Category = quarry.Category(category)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and all its fragments in a single transaction.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM fragments WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete document fragments: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete document: %w", err)
	}
	return tx.Commit(ctx)
}

// fragmentColumns is the SELECT list matching scanFragmentRow's scan order.
const fragmentColumns = `id, document_id, content, frag_index, char_start, char_end,
	breadcrumbs, location, chunk_type, quality_score, quality_flags, completeness,
	has_title, token_count`

// scanFragmentRow reads the non-embedding fragment columns plus any extras
// the caller appends to the scan list (score, embedding text).
func scanFragmentRow(rows pgx.Rows, extra ...any) (quarry.Fragment, error) {
	var f quarry.Fragment
	var crumbs, location, flags []byte
	var chunkType, completeness string
	dest := []any{&f.ID, &f.DocumentID, &f.Content, &f.Index, &f.CharStart, &f.CharEnd,
		&crumbs, &location, &chunkType, &f.QualityScore, &flags, &completeness,
		&f.HasTitle, &f.TokenCount}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return quarry.Fragment{}, fmt.Errorf("postgres: scan fragment: %w", err)
	}
	if crumbs != nil {
		_ = json.Unmarshal(crumbs, &f.Breadcrumbs)
	}
	if location != nil {
		_ = json.Unmarshal(location, &f.Location)
	}
	if flags != nil {
		_ = json.Unmarshal(flags, &f.QualityFlags)
	}
	f.ChunkType = quarry.ChunkType(chunkType)
	f.Completeness = quarry.Completeness(completeness)
	return f, nil
}

// GetFragmentsByDocument returns all fragments belonging to a specific
// document in chunk order, including their embeddings.
func (s *Store) GetFragmentsByDocument(ctx context.Context, docID string) ([]quarry.Fragment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fragmentColumns+`, embedding::text
		 FROM fragments WHERE document_id = $1 ORDER BY frag_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get fragments by document: %w", err)
	}
	defer rows.Close()

	var fragments []quarry.Fragment
	for rows.Next() {
		var embStr *string
		f, err := scanFragmentRow(rows, &embStr)
		if err != nil {
			return nil, err
		}
		if embStr != nil {
			f.Embedding = deserializeEmbedding(*embStr)
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// SearchFragments performs vector similarity search over fragments
// using pgvector's cosine distance operator with HNSW index.
func (s *Store) SearchFragments(ctx context.Context, embedding []float32, topK int) ([]quarry.ScoredFragment, error) {
	embStr := serializeEmbedding(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT `+fragmentColumns+`,
		        1 - (embedding <=> $1::vector) AS score
		 FROM fragments
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		embStr, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search fragments: %w", err)
	}
	defer rows.Close()

	var results []quarry.ScoredFragment
	for rows.Next() {
		var score float64
		f, err := scanFragmentRow(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, quarry.ScoredFragment{Fragment: f, Score: score})
	}
	return results, rows.Err()
}

// SearchFragmentsKeyword performs full-text keyword search over fragments
// using PostgreSQL tsvector/tsquery with a GIN index.
func (s *Store) SearchFragmentsKeyword(ctx context.Context, query string, topK int) ([]quarry.ScoredFragment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fragmentColumns+`,
		        ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1))::float8 AS score
		 FROM fragments
		 WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		 ORDER BY score DESC
		 LIMIT $2`,
		query, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyword search: %w", err)
	}
	defer rows.Close()

	var results []quarry.ScoredFragment
	for rows.Next() {
		var score float64
		f, err := scanFragmentRow(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, quarry.ScoredFragment{Fragment: f, Score: score})
	}
	return results, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

// --- Helpers ---

func marshalJSON(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// deserializeEmbedding parses pgvector's text output format back to
// []float32. Malformed components are dropped rather than failing the row.
func deserializeEmbedding(s string) []float32 {
	s = strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(s), "]"), "[")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			continue
		}
		out = append(out, float32(v))
	}
	return out
}
