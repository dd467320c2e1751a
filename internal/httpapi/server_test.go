package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
)

// fakeStore is an in-memory quarry.Store for handler tests.
type fakeStore struct {
	docs  map[string]quarry.Document
	frags map[string][]quarry.Fragment
	fail  bool
}

var _ quarry.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:  make(map[string]quarry.Document),
		frags: make(map[string][]quarry.Fragment),
	}
}

func (s *fakeStore) StoreDocument(_ context.Context, doc quarry.Document, frags []quarry.Fragment) error {
	if s.fail {
		return fmt.Errorf("store down")
	}
	s.docs[doc.ID] = doc
	s.frags[doc.ID] = frags
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, id string) (quarry.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return quarry.Document{}, fmt.Errorf("document %s not found", id)
	}
	return doc, nil
}

func (s *fakeStore) ListDocuments(_ context.Context, _ int) ([]quarry.Document, error) {
	if s.fail {
		return nil, fmt.Errorf("store down")
	}
	var docs []quarry.Document
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, id string) error {
	delete(s.docs, id)
	delete(s.frags, id)
	return nil
}

func (s *fakeStore) GetFragmentsByDocument(_ context.Context, docID string) ([]quarry.Fragment, error) {
	return s.frags[docID], nil
}

func (s *fakeStore) SearchFragments(_ context.Context, _ []float32, _ int) ([]quarry.ScoredFragment, error) {
	return nil, nil
}

func (s *fakeStore) Init(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

// fakeIngestor records calls and optionally fails.
type fakeIngestor struct {
	store *fakeStore
	err   error
}

func (f *fakeIngestor) Ingest(ctx context.Context, doc quarry.Document) (chunk.IngestResult, error) {
	if f.err != nil {
		return chunk.IngestResult{}, f.err
	}
	if doc.ID == "" {
		doc.ID = quarry.NewID()
	}
	frags := []quarry.Fragment{{ID: quarry.NewID(), DocumentID: doc.ID, Content: doc.Content}}
	_ = f.store.StoreDocument(ctx, doc, frags)
	return chunk.IngestResult{DocumentID: doc.ID, FragmentCount: len(frags)}, nil
}

// fakeSearcher returns canned results or the validation errors a real
// searcher would produce.
type fakeSearcher struct {
	results []quarry.SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, topK int, mode quarry.SearchMode, alpha float64) ([]quarry.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if alpha < 0 || alpha > 1 {
		return nil, &quarry.ErrInvalidParameter{Param: "alpha", Reason: "must be in [0,1]"}
	}
	switch mode {
	case quarry.ModeSemantic, quarry.ModeHybrid:
	default:
		return nil, &quarry.ErrInvalidParameter{Param: "mode", Reason: "unknown mode"}
	}
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func testServer(t *testing.T, store *fakeStore, ing Ingestor, search quarry.Searcher) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(store, ing, search).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, newFakeStore(), &fakeIngestor{store: newFakeStore()}, &fakeSearcher{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestIngestDocument(t *testing.T) {
	store := newFakeStore()
	srv := testServer(t, store, &fakeIngestor{store: store}, &fakeSearcher{})

	resp := postJSON(t, srv.URL+"/v1/documents",
		`{"filename":"guide.md","content":"# Guide\n\nAlways rotate credentials quarterly."}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	out := decodeBody[IngestResponse](t, resp)
	if out.DocumentID == "" || out.FragmentCount != 1 {
		t.Errorf("unexpected response: %+v", out)
	}
	if len(store.docs) != 1 {
		t.Errorf("expected 1 stored document, got %d", len(store.docs))
	}
}

func TestIngestValidation(t *testing.T) {
	store := newFakeStore()
	srv := testServer(t, store, &fakeIngestor{store: store}, &fakeSearcher{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"filename":`},
		{"missing filename", `{"content":"text"}`},
		{"blank content", `{"filename":"a.md","content":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/documents", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestIngestChunkingError(t *testing.T) {
	store := newFakeStore()
	ing := &fakeIngestor{store: store, err: &quarry.ErrChunking{Category: quarry.CategoryDocument, Reason: "empty document"}}
	srv := testServer(t, store, ing, &fakeSearcher{})

	resp := postJSON(t, srv.URL+"/v1/documents", `{"filename":"a.md","content":"x"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	store := newFakeStore()
	srv := testServer(t, store, &fakeIngestor{store: store}, &fakeSearcher{})

	resp := postJSON(t, srv.URL+"/v1/documents", `{"filename":"a.md","content":"# A\n\nBody text."}`)
	created := decodeBody[IngestResponse](t, resp)

	// Get
	resp2, _ := http.Get(srv.URL + "/v1/documents/" + created.DocumentID)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp2.StatusCode)
	}
	doc := decodeBody[quarry.Document](t, resp2)
	if doc.ID != created.DocumentID {
		t.Errorf("doc id = %q, want %q", doc.ID, created.DocumentID)
	}

	// Fragments
	resp3, _ := http.Get(srv.URL + "/v1/documents/" + created.DocumentID + "/fragments")
	frags := decodeBody[[]quarry.Fragment](t, resp3)
	if len(frags) != 1 {
		t.Errorf("fragments = %d, want 1", len(frags))
	}

	// List
	resp4, _ := http.Get(srv.URL + "/v1/documents")
	docs := decodeBody[[]quarry.Document](t, resp4)
	if len(docs) != 1 {
		t.Errorf("documents = %d, want 1", len(docs))
	}

	// Delete
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/documents/"+created.DocumentID, nil)
	resp5, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp5.Body.Close()
	if resp5.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp5.StatusCode)
	}

	resp6, err := http.Get(srv.URL + "/v1/documents/" + created.DocumentID)
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	defer resp6.Body.Close()
	if resp6.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp6.StatusCode)
	}
}

func TestSearch(t *testing.T) {
	searcher := &fakeSearcher{results: []quarry.SearchResult{
		{FragmentID: "f1", Content: "billing runbook", FusedScore: 0.8, Rank: 1},
		{FragmentID: "f2", Content: "deploy guide", FusedScore: 0.3, Rank: 2},
	}}
	store := newFakeStore()
	srv := testServer(t, store, &fakeIngestor{store: store}, searcher)

	resp := postJSON(t, srv.URL+"/v1/search", `{"query":"billing","top_k":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeBody[SearchResponse](t, resp)
	if len(out.Results) != 2 || out.Results[0].FragmentID != "f1" {
		t.Errorf("unexpected results: %+v", out.Results)
	}
}

func TestSearchValidation(t *testing.T) {
	store := newFakeStore()
	srv := testServer(t, store, &fakeIngestor{store: store}, &fakeSearcher{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"blank query", `{"query":"  "}`, http.StatusBadRequest},
		{"bad alpha", `{"query":"q","alpha":1.5}`, http.StatusBadRequest},
		{"bad mode", `{"query":"q","mode":"fuzzy"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/search", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestSearchBackendUnavailable(t *testing.T) {
	searcher := &fakeSearcher{err: &quarry.ErrRetrieval{Source: "vector", Err: fmt.Errorf("connection refused")}}
	store := newFakeStore()
	srv := testServer(t, store, &fakeIngestor{store: store}, searcher)

	resp := postJSON(t, srv.URL+"/v1/search", `{"query":"anything"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
