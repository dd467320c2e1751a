package chunk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	quarry "github.com/quarrydocs/quarry"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]quarry.Document
	fragments map[string][]quarry.Fragment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]quarry.Document),
		fragments: make(map[string][]quarry.Fragment),
	}
}

func (s *fakeStore) StoreDocument(_ context.Context, doc quarry.Document, frags []quarry.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	s.fragments[doc.ID] = frags
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, id string) (quarry.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return quarry.Document{}, errors.New("not found")
	}
	return doc, nil
}

func (s *fakeStore) ListDocuments(_ context.Context, limit int) ([]quarry.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []quarry.Document
	for _, d := range s.docs {
		docs = append(docs, d)
		if limit > 0 && len(docs) == limit {
			break
		}
	}
	return docs, nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.fragments, id)
	return nil
}

func (s *fakeStore) GetFragmentsByDocument(_ context.Context, docID string) ([]quarry.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments[docID], nil
}

func (s *fakeStore) SearchFragments(_ context.Context, _ []float32, _ int) ([]quarry.ScoredFragment, error) {
	return nil, nil
}

func (s *fakeStore) Init(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

var _ quarry.Store = (*fakeStore)(nil)

func TestIngestStoresEmbeddedFragments(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	ing := NewIngestor(store, emb)

	res, err := ing.Ingest(context.Background(), quarry.Document{
		Title:    "Guide",
		Content:  "# Guide\n\nThe guide describes how the nightly archiver is operated in production.",
		Category: quarry.CategoryDocument,
	})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.DocumentID == "" {
		t.Error("result has no document ID")
	}
	if res.FragmentCount == 0 {
		t.Fatal("result reports zero fragments")
	}

	frags, _ := store.GetFragmentsByDocument(context.Background(), res.DocumentID)
	if len(frags) != res.FragmentCount {
		t.Fatalf("store holds %d fragments, result reports %d", len(frags), res.FragmentCount)
	}
	for i, f := range frags {
		if len(f.Embedding) == 0 {
			t.Errorf("fragment %d stored without embedding", i)
		}
	}

	doc, err := store.GetDocument(context.Background(), res.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument() error: %v", err)
	}
	if doc.CreatedAt == 0 {
		t.Error("stored document has no timestamp")
	}
}

func TestIngestEmbedsInBatches(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	ing := NewIngestor(store, emb, WithBatchSize(2))

	// Five standalone slides produce five fragments: three embed calls at
	// batch size two.
	res, err := ing.Ingest(context.Background(), quarry.Document{
		Title: "Deck",
		Content: deck(
			bigSlide("One"), bigSlide("Two"), bigSlide("Three"), bigSlide("Four"), bigSlide("Five"),
		),
		Category: quarry.CategoryPresentation,
	})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.FragmentCount != 5 {
		t.Fatalf("FragmentCount = %d, want 5", res.FragmentCount)
	}
	if emb.calls != 3 {
		t.Errorf("embed calls = %d, want 3 batches of <=2", emb.calls)
	}
}

func TestIngestEmbeddingFailure(t *testing.T) {
	store := newFakeStore()
	ing := NewIngestor(store, &fakeEmbedder{fail: true})

	_, err := ing.Ingest(context.Background(), quarry.Document{
		Title:    "Guide",
		Content:  "# Guide\n\nContent that will never reach the store because embedding fails.",
		Category: quarry.CategoryDocument,
	})
	if err == nil {
		t.Fatal("Ingest() with failing embedder returned nil error")
	}
	if len(store.docs) != 0 {
		t.Error("document stored despite embedding failure")
	}
}

func TestIngestAll(t *testing.T) {
	store := newFakeStore()
	ing := NewIngestor(store, &fakeEmbedder{}, WithWorkers(2))

	docs := []quarry.Document{
		{Title: "A", Content: "# A\n\nFirst document body text for the concurrent ingestion test.", Category: quarry.CategoryDocument},
		{Title: "Broken", Content: "   ", Category: quarry.CategoryDocument},
		{Title: "C", Content: "# C\n\nThird document body text for the concurrent ingestion test.", Category: quarry.CategoryDocument},
	}

	results, err := ing.IngestAll(context.Background(), docs)
	if err == nil {
		t.Fatal("IngestAll() with a broken document returned nil error")
	}
	if !strings.Contains(err.Error(), "Broken") {
		t.Errorf("error = %v, want the failing document named", err)
	}
	if len(results) != len(docs) {
		t.Fatalf("results length = %d, want %d", len(results), len(docs))
	}
	if results[0].FragmentCount == 0 || results[2].FragmentCount == 0 {
		t.Error("healthy documents not ingested alongside the broken one")
	}
	if len(store.docs) != 2 {
		t.Errorf("store holds %d documents, want 2", len(store.docs))
	}
}

func TestIngestAllEmpty(t *testing.T) {
	ing := NewIngestor(newFakeStore(), &fakeEmbedder{})

	results, err := ing.IngestAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("IngestAll(nil) error: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}
