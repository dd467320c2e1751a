// Package sqlite implements quarry.Store using pure-Go SQLite
// with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	quarry "github.com/quarrydocs/quarry"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements quarry.Store backed by a local SQLite file.
// Embeddings are stored as JSON text and vector search is done
// in-process using brute-force cosine similarity. Keyword search
// runs over an FTS5 index kept in sync with the fragments table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ quarry.Store = (*Store)(nil)
var _ quarry.KeywordSearcher = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fragments (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			frag_index INTEGER NOT NULL,
			char_start INTEGER NOT NULL,
			char_end INTEGER NOT NULL,
			breadcrumbs TEXT,
			location TEXT,
			chunk_type TEXT NOT NULL,
			quality_score REAL NOT NULL,
			quality_flags TEXT,
			completeness TEXT NOT NULL,
			has_title INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding TEXT
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Indexes on frequently queried columns.
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_fragments_document ON fragments(document_id)`)

	// FTS5 full-text index for keyword search over fragments.
	_, _ = s.db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS fragments_fts USING fts5(fragment_id UNINDEXED, content)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// StoreDocument inserts a document and all its fragments in a single
// transaction, replacing any previous fragment set for the same document.
func (s *Store) StoreDocument(ctx context.Context, doc quarry.Document, fragments []quarry.Fragment) error {
	start := time.Now()
	s.logger.Debug("sqlite: store document", "id", doc.ID, "title", doc.Title, "source", doc.Source, "fragments", len(fragments))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, title, source, content, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, doc.Content, string(doc.Category), doc.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: insert document failed", "id", doc.ID, "error", err)
		return fmt.Errorf("insert document: %w", err)
	}

	// Re-ingesting replaces the old fragment set wholesale so stale
	// fragments never linger in search results.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM fragments_fts WHERE fragment_id IN (SELECT id FROM fragments WHERE document_id = ?)`, doc.ID)
	if err != nil {
		return fmt.Errorf("clear fragment fts: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear fragments: %w", err)
	}

	for _, f := range fragments {
		var embJSON *string
		if len(f.Embedding) > 0 {
			v := serializeEmbedding(f.Embedding)
			embJSON = &v
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fragments (id, document_id, content, frag_index, char_start, char_end,
				breadcrumbs, location, chunk_type, quality_score, quality_flags, completeness,
				has_title, token_count, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.DocumentID, f.Content, f.Index, f.CharStart, f.CharEnd,
			marshalJSON(f.Breadcrumbs), marshalJSON(f.Location), string(f.ChunkType),
			f.QualityScore, marshalJSON(f.QualityFlags), string(f.Completeness),
			boolToInt(f.HasTitle), f.TokenCount, embJSON,
		)
		if err != nil {
			s.logger.Error("sqlite: insert fragment failed", "fragment_id", f.ID, "doc_id", doc.ID, "error", err)
			return fmt.Errorf("insert fragment: %w", err)
		}

		// Keep FTS index in sync.
		if _, err2 := tx.ExecContext(ctx, `INSERT INTO fragments_fts(fragment_id, content) VALUES (?, ?)`, f.ID, f.Content); err2 != nil {
			return fmt.Errorf("insert fragment fts: %w", err2)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: store document commit failed", "id", doc.ID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: store document ok", "id", doc.ID, "fragments", len(fragments), "duration", time.Since(start))
	return nil
}

// GetDocument returns a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (quarry.Document, error) {
	var d quarry.Document
	var category string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, source, content, category, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Source, &d.Content, &category, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return quarry.Document{}, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		return quarry.Document{}, fmt.Errorf("get document: %w", err)
	}
	d.Category = quarry.Category(category)
	return d, nil
}

// ListDocuments returns all documents ordered by creation time (newest first).
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]quarry.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list documents", "limit", limit)

	query := `SELECT id, title, source, content, category, created_at FROM documents ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: list documents failed", "error", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []quarry.Document
	for rows.Next() {
		var d quarry.Document
		var category string
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &category, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Category = quarry.Category(category)
		docs = append(docs, d)
	}
	s.logger.Debug("sqlite: list documents ok", "count", len(docs), "duration", time.Since(start))
	return docs, rows.Err()
}

// DeleteDocument removes a document, its fragments, and associated FTS entries.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete document", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`DELETE FROM fragments_fts WHERE fragment_id IN (SELECT id FROM fragments WHERE document_id = ?)`, id)
	if err != nil {
		return fmt.Errorf("delete document fts: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document fragments: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete document commit failed", "id", id, "error", err)
		return err
	}
	s.logger.Debug("sqlite: delete document ok", "id", id, "duration", time.Since(start))
	return nil
}

// fragmentColumns is the SELECT list matching scanFragment's scan order.
const fragmentColumns = `id, document_id, content, frag_index, char_start, char_end,
	breadcrumbs, location, chunk_type, quality_score, quality_flags, completeness,
	has_title, token_count, embedding`

// scanFragment reads one fragment row and returns the raw embedding JSON
// alongside, so search paths can decode it without a second query.
func scanFragment(rows *sql.Rows, withEmbedding bool) (quarry.Fragment, string, error) {
	var f quarry.Fragment
	var breadcrumbs, location, flags, embJSON sql.NullString
	var chunkType, completeness string
	var hasTitle int
	if err := rows.Scan(&f.ID, &f.DocumentID, &f.Content, &f.Index, &f.CharStart, &f.CharEnd,
		&breadcrumbs, &location, &chunkType, &f.QualityScore, &flags, &completeness,
		&hasTitle, &f.TokenCount, &embJSON); err != nil {
		return quarry.Fragment{}, "", fmt.Errorf("scan fragment: %w", err)
	}
	if breadcrumbs.Valid {
		_ = json.Unmarshal([]byte(breadcrumbs.String), &f.Breadcrumbs)
	}
	if location.Valid {
		_ = json.Unmarshal([]byte(location.String), &f.Location)
	}
	if flags.Valid {
		_ = json.Unmarshal([]byte(flags.String), &f.QualityFlags)
	}
	f.ChunkType = quarry.ChunkType(chunkType)
	f.Completeness = quarry.Completeness(completeness)
	f.HasTitle = hasTitle != 0
	if withEmbedding && embJSON.Valid {
		f.Embedding, _ = deserializeEmbedding(embJSON.String)
	}
	emb := ""
	if embJSON.Valid {
		emb = embJSON.String
	}
	return f, emb, nil
}

// GetFragmentsByDocument returns all fragments belonging to a specific
// document in chunk order, including their embeddings.
func (s *Store) GetFragmentsByDocument(ctx context.Context, docID string) ([]quarry.Fragment, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get fragments by document", "doc_id", docID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fragmentColumns+` FROM fragments WHERE document_id = ? ORDER BY frag_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("get fragments by document: %w", err)
	}
	defer rows.Close()

	var fragments []quarry.Fragment
	for rows.Next() {
		f, _, err := scanFragment(rows, true)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	s.logger.Debug("sqlite: get fragments by document ok", "doc_id", docID, "count", len(fragments), "duration", time.Since(start))
	return fragments, rows.Err()
}

// SearchFragments performs brute-force cosine similarity search over fragments.
func (s *Store) SearchFragments(ctx context.Context, embedding []float32, topK int) ([]quarry.ScoredFragment, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search fragments", "top_k", topK, "embedding_dim", len(embedding))

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fragmentColumns+` FROM fragments WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("search fragments: %w", err)
	}
	defer rows.Close()

	var results []quarry.ScoredFragment
	scanned := 0

	for rows.Next() {
		f, embJSON, err := scanFragment(rows, false)
		if err != nil {
			return nil, err
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		results = append(results, quarry.ScoredFragment{Fragment: f, Score: cosineSimilarity(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: search fragments ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// SearchFragmentsKeyword performs full-text keyword search over fragments
// using SQLite FTS5. Results are sorted by relevance (FTS5 rank).
func (s *Store) SearchFragmentsKeyword(ctx context.Context, query string, topK int) ([]quarry.ScoredFragment, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search fragments keyword", "query", query, "top_k", topK)

	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.document_id, f.content, f.frag_index, f.char_start, f.char_end,
			f.breadcrumbs, f.location, f.chunk_type, f.quality_score, f.quality_flags, f.completeness,
			f.has_title, f.token_count, x.rank
		 FROM fragments_fts x
		 JOIN fragments f ON f.id = x.fragment_id
		 WHERE fragments_fts MATCH ?
		 ORDER BY x.rank LIMIT ?`, match, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []quarry.ScoredFragment
	for rows.Next() {
		var f quarry.Fragment
		var breadcrumbs, location, flags sql.NullString
		var chunkType, completeness string
		var hasTitle int
		var rank float64
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Content, &f.Index, &f.CharStart, &f.CharEnd,
			&breadcrumbs, &location, &chunkType, &f.QualityScore, &flags, &completeness,
			&hasTitle, &f.TokenCount, &rank); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		if breadcrumbs.Valid {
			_ = json.Unmarshal([]byte(breadcrumbs.String), &f.Breadcrumbs)
		}
		if location.Valid {
			_ = json.Unmarshal([]byte(location.String), &f.Location)
		}
		if flags.Valid {
			_ = json.Unmarshal([]byte(flags.String), &f.QualityFlags)
		}
		f.ChunkType = quarry.ChunkType(chunkType)
		f.Completeness = quarry.Completeness(completeness)
		f.HasTitle = hasTitle != 0
		// FTS5 rank is negative (closer to 0 = better). Use -rank as score.
		score := -rank
		if score < 0 {
			score = 0
		}
		results = append(results, quarry.ScoredFragment{Fragment: f, Score: score})
	}
	s.logger.Debug("sqlite: search fragments keyword ok", "returned", len(results), "duration", time.Since(start))
	return results, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

// ftsQuery turns free-form user text into a safe FTS5 MATCH expression by
// quoting each term. Unquoted input would let characters like - or " reach
// the FTS5 query parser and fail the whole search.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

func marshalJSON(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
