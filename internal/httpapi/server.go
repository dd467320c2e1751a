// Package httpapi exposes ingestion and retrieval over HTTP. JSON bodies are
// encoded with sonic; routing is chi.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
	"github.com/quarrydocs/quarry/normalize"
)

// Ingestor is the ingestion surface the API calls into. Both chunk.Ingestor
// and its observer wrapper satisfy it.
type Ingestor interface {
	Ingest(ctx context.Context, doc quarry.Document) (chunk.IngestResult, error)
}

// Server wires the HTTP surface to the pipeline components.
type Server struct {
	store    quarry.Store
	ingestor Ingestor
	searcher quarry.Searcher
	logger   *slog.Logger
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets a structured logger for request handling.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server over the given components.
func NewServer(store quarry.Store, ingestor Ingestor, searcher quarry.Searcher, opts ...ServerOption) *Server {
	s := &Server{store: store, ingestor: ingestor, searcher: searcher, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.handleIngest)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/fragments", s.handleGetFragments)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Post("/search", s.handleSearch)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestRequest is the POST /v1/documents payload. Content is the raw file
// body; Filename selects the normalizer by extension.
type IngestRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// IngestResponse reports the stored document and its fragment count.
type IngestResponse struct {
	DocumentID    string `json:"document_id"`
	FragmentCount int    `json:"fragment_count"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	doc, err := normalize.Document(req.Filename, []byte(req.Content))
	if err != nil {
		s.logger.Warn("normalize failed", "filename", req.Filename, "err", err)
		writeError(w, http.StatusUnprocessableEntity, "could not normalize document")
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), doc)
	if err != nil {
		var chunkErr *quarry.ErrChunking
		if errors.As(err, &chunkErr) {
			writeError(w, http.StatusUnprocessableEntity, chunkErr.Error())
			return
		}
		s.logger.Error("ingest failed", "filename", req.Filename, "err", err)
		writeError(w, http.StatusBadGateway, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusCreated, IngestResponse{
		DocumentID:    res.DocumentID,
		FragmentCount: res.FragmentCount,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context(), 0)
	if err != nil {
		s.logger.Error("list documents failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list documents")
		return
	}
	if docs == nil {
		docs = []quarry.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetFragments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frags, err := s.store.GetFragmentsByDocument(r.Context(), id)
	if err != nil {
		s.logger.Error("get fragments failed", "doc_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load fragments")
		return
	}
	if frags == nil {
		frags = []quarry.Fragment{}
	}
	writeJSON(w, http.StatusOK, frags)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("delete document failed", "doc_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchRequest is the POST /v1/search payload. Mode defaults to hybrid and
// Alpha to quarry.DefaultAlpha when omitted.
type SearchRequest struct {
	Query string   `json:"query"`
	TopK  int      `json:"top_k"`
	Mode  string   `json:"mode"`
	Alpha *float64 `json:"alpha"`
}

// SearchResponse wraps the ranked hits.
type SearchResponse struct {
	Results []quarry.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK == 0 {
		req.TopK = 10
	}
	mode := quarry.ModeHybrid
	if req.Mode != "" {
		mode = quarry.SearchMode(req.Mode)
	}
	alpha := quarry.DefaultAlpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}

	results, err := s.searcher.Search(r.Context(), req.Query, req.TopK, mode, alpha)
	if err != nil {
		var invalid *quarry.ErrInvalidParameter
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Error())
			return
		}
		var retrieval *quarry.ErrRetrieval
		if errors.As(err, &retrieval) {
			s.logger.Error("search backend failed", "source", retrieval.Source, "err", err)
			writeError(w, http.StatusServiceUnavailable, "search backend unavailable")
			return
		}
		s.logger.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []quarry.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
