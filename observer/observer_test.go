package observer

import (
	"context"
	"errors"
	"testing"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockEmbedding for observer tests.
type mockEmbedding struct {
	vecs [][]float32
	err  error
}

func (m *mockEmbedding) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return m.vecs, m.err
}

// mockSearcher for observer tests.
type mockSearcher struct {
	results []quarry.SearchResult
	err     error
}

func (m *mockSearcher) Search(_ context.Context, _ string, _ int, _ quarry.SearchMode, _ float64) ([]quarry.SearchResult, error) {
	return m.results, m.err
}

// mockIngestor for observer tests.
type mockIngestor struct {
	res chunk.IngestResult
	err error
}

func (m *mockIngestor) Ingest(_ context.Context, _ quarry.Document) (chunk.IngestResult, error) {
	return m.res, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

// ---------------------------------------------------------------------------
// ObservedEmbedding tests
// ---------------------------------------------------------------------------

func TestObservedEmbeddingEmbed(t *testing.T) {
	want := [][]float32{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0.6},
	}
	inner := &mockEmbedding{vecs: want}
	oe := WrapEmbedding(inner, "embed-model", testInstruments(t))

	got, err := oe.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed returned unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Embed returned %d vectors, want %d", len(got), len(want))
	}
	for i := range got {
		for j := range got[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("vector[%d][%d] = %f, want %f", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestObservedEmbeddingEmbedError(t *testing.T) {
	wantErr := errors.New("embedding service down")
	inner := &mockEmbedding{err: wantErr}
	oe := WrapEmbedding(inner, "embed-model", testInstruments(t))

	_, err := oe.Embed(context.Background(), []string{"test"})
	if !errors.Is(err, wantErr) {
		t.Errorf("Embed error = %v, want %v", err, wantErr)
	}
}

// ---------------------------------------------------------------------------
// ObservedSearcher tests
// ---------------------------------------------------------------------------

func TestObservedSearcherSearch(t *testing.T) {
	want := []quarry.SearchResult{
		{FragmentID: "f1", Content: "first", FusedScore: 0.8, Rank: 1},
		{FragmentID: "f2", Content: "second", FusedScore: 0.4, Rank: 2},
	}
	inner := &mockSearcher{results: want}
	os := WrapSearcher(inner, testInstruments(t))

	got, err := os.Search(context.Background(), "query", 10, quarry.ModeHybrid, quarry.DefaultAlpha)
	if err != nil {
		t.Fatalf("Search returned unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].FragmentID != "f1" {
		t.Errorf("Search = %+v, want delegated results", got)
	}
}

func TestObservedSearcherSearchError(t *testing.T) {
	wantErr := errors.New("store unavailable")
	inner := &mockSearcher{err: wantErr}
	os := WrapSearcher(inner, testInstruments(t))

	_, err := os.Search(context.Background(), "query", 10, quarry.ModeSemantic, 1.0)
	if !errors.Is(err, wantErr) {
		t.Errorf("Search error = %v, want %v", err, wantErr)
	}
}

// ---------------------------------------------------------------------------
// ObservedIngestor tests
// ---------------------------------------------------------------------------

func TestObservedIngestorIngest(t *testing.T) {
	want := chunk.IngestResult{DocumentID: "doc-1", FragmentCount: 7}
	inner := &mockIngestor{res: want}
	oi := WrapIngestor(inner, testInstruments(t))

	got, err := oi.Ingest(context.Background(), quarry.Document{Category: quarry.CategoryDocument})
	if err != nil {
		t.Fatalf("Ingest returned unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("Ingest = %+v, want %+v", got, want)
	}
}

func TestObservedIngestorIngestError(t *testing.T) {
	wantErr := errors.New("chunking failed")
	inner := &mockIngestor{err: wantErr}
	oi := WrapIngestor(inner, testInstruments(t))

	_, err := oi.Ingest(context.Background(), quarry.Document{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Ingest error = %v, want %v", err, wantErr)
	}
}
