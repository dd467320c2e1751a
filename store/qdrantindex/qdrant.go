// Package qdrantindex implements quarry.VectorSearcher backed by a Qdrant
// collection. It is a vector index, not a full store: fragments live in a
// primary quarry.Store and are mirrored here for ANN search, with enough
// payload to rank and display hits without a round trip to the store.
package qdrantindex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	quarry "github.com/quarrydocs/quarry"
)

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets a structured logger for the index.
func WithLogger(l *slog.Logger) IndexOption {
	return func(ix *Index) { ix.logger = l }
}

// WithCollection overrides the default collection name.
func WithCollection(name string) IndexOption {
	return func(ix *Index) { ix.collection = name }
}

// Index mirrors fragment embeddings into a Qdrant collection and serves
// vector search from it.
type Index struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

var _ quarry.VectorSearcher = (*Index)(nil)

const defaultCollection = "fragments"

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New connects to a Qdrant server. urlStr is the HTTP endpoint
// ("http://localhost:6333"); the gRPC port is derived as HTTP port + 1.
func New(urlStr string, opts ...IndexOption) (*Index, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}

	ix := &Index{client: client, collection: defaultCollection, logger: nopLogger}
	for _, o := range opts {
		o(ix)
	}
	return ix, nil
}

// Init ensures the collection exists with the given vector size, validating
// the size when the collection already exists.
func (ix *Index) Init(ctx context.Context, vectorSize int) error {
	exists, err := ix.client.CollectionExists(ctx, ix.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		ix.logger.Info("qdrant: creating collection", "collection", ix.collection, "vector_size", vectorSize)
		err := ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: ix.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		return nil
	}

	info, err := ix.client.GetCollectionInfo(ctx, ix.collection)
	if err != nil {
		return fmt.Errorf("collection info: %w", err)
	}
	if cfg := info.Config; cfg != nil && cfg.Params != nil {
		if vc := cfg.Params.GetVectorsConfig(); vc != nil {
			if params := vc.GetParams(); params != nil && params.Size != 0 && int(params.Size) != vectorSize {
				return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, params.Size)
			}
		}
	}
	return nil
}

// UpsertFragments mirrors embedded fragments into the collection. Fragments
// without embeddings are skipped.
func (ix *Index) UpsertFragments(ctx context.Context, fragments []quarry.Fragment) error {
	points := make([]*qdrant.PointStruct, 0, len(fragments))
	for _, f := range fragments {
		if len(f.Embedding) == 0 {
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(f.ID),
			Vectors: qdrant.NewVectors(f.Embedding...),
			Payload: qdrant.NewValueMap(fragmentPayload(f)),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert fragments: %w", err)
	}
	ix.logger.Debug("qdrant: upserted fragments", "collection", ix.collection, "count", len(points))
	return nil
}

// DeleteByDocument removes all mirrored fragments of a document.
func (ix *Index) DeleteByDocument(ctx context.Context, docID string) error {
	_, err := ix.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: ix.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", docID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete by document: %w", err)
	}
	return nil
}

// SearchFragments performs vector similarity search over the collection.
func (ix *Index) SearchFragments(ctx context.Context, embedding []float32, topK int) ([]quarry.ScoredFragment, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}

	limit := uint64(topK)
	points, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}

	results := make([]quarry.ScoredFragment, 0, len(points))
	for _, p := range points {
		f := fragmentFromPayload(p.Payload)
		if p.Id != nil {
			f.ID = p.Id.GetUuid()
		}
		results = append(results, quarry.ScoredFragment{Fragment: f, Score: float64(p.Score)})
	}
	ix.logger.Debug("qdrant: search fragments ok", "collection", ix.collection, "top_k", topK, "returned", len(results))
	return results, nil
}

// fragmentPayload flattens the fragment fields needed to rank and display a
// hit into a Qdrant payload.
func fragmentPayload(f quarry.Fragment) map[string]any {
	crumbs := make([]any, len(f.Breadcrumbs))
	for i, c := range f.Breadcrumbs {
		crumbs[i] = c
	}
	return map[string]any{
		"document_id":   f.DocumentID,
		"content":       f.Content,
		"frag_index":    int64(f.Index),
		"char_start":    int64(f.CharStart),
		"char_end":      int64(f.CharEnd),
		"breadcrumbs":   crumbs,
		"chunk_type":    string(f.ChunkType),
		"quality_score": f.QualityScore,
		"completeness":  string(f.Completeness),
		"has_title":     f.HasTitle,
		"token_count":   int64(f.TokenCount),
	}
}

// fragmentFromPayload rebuilds the displayable fragment fields from a
// payload. Location and flags are not mirrored; callers needing them load
// the fragment from the primary store.
func fragmentFromPayload(payload map[string]*qdrant.Value) quarry.Fragment {
	var f quarry.Fragment
	if payload == nil {
		return f
	}
	f.DocumentID = payload["document_id"].GetStringValue()
	f.Content = payload["content"].GetStringValue()
	f.Index = int(payload["frag_index"].GetIntegerValue())
	f.CharStart = int(payload["char_start"].GetIntegerValue())
	f.CharEnd = int(payload["char_end"].GetIntegerValue())
	f.ChunkType = quarry.ChunkType(payload["chunk_type"].GetStringValue())
	f.QualityScore = payload["quality_score"].GetDoubleValue()
	f.Completeness = quarry.Completeness(payload["completeness"].GetStringValue())
	f.HasTitle = payload["has_title"].GetBoolValue()
	f.TokenCount = int(payload["token_count"].GetIntegerValue())
	if list := payload["breadcrumbs"].GetListValue(); list != nil {
		for _, v := range list.Values {
			f.Breadcrumbs = append(f.Breadcrumbs, v.GetStringValue())
		}
	}
	return f
}
