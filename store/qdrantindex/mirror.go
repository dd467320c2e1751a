package qdrantindex

import (
	"context"
	"fmt"

	quarry "github.com/quarrydocs/quarry"
)

// Mirrored pairs a primary quarry.Store with a Qdrant index. Writes go to the
// primary first and are then mirrored; vector search is served from the index
// while everything else (including keyword search, via the embedded store)
// stays on the primary.
type Mirrored struct {
	quarry.Store
	index      *Index
	vectorSize int
}

var _ quarry.Store = (*Mirrored)(nil)

// NewMirrored wraps primary so that fragment embeddings are kept in sync with
// the index. vectorSize is used to create the collection on Init.
func NewMirrored(primary quarry.Store, index *Index, vectorSize int) *Mirrored {
	return &Mirrored{Store: primary, index: index, vectorSize: vectorSize}
}

// Init initializes the primary store and ensures the collection exists.
func (m *Mirrored) Init(ctx context.Context) error {
	if err := m.Store.Init(ctx); err != nil {
		return err
	}
	return m.index.Init(ctx, m.vectorSize)
}

// StoreDocument writes to the primary, then replaces the document's mirrored
// points. A primary failure leaves the index untouched.
func (m *Mirrored) StoreDocument(ctx context.Context, doc quarry.Document, fragments []quarry.Fragment) error {
	if err := m.Store.StoreDocument(ctx, doc, fragments); err != nil {
		return err
	}
	if err := m.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("mirror delete: %w", err)
	}
	if err := m.index.UpsertFragments(ctx, fragments); err != nil {
		return fmt.Errorf("mirror upsert: %w", err)
	}
	return nil
}

// DeleteDocument removes the document from the primary and its points from
// the index.
func (m *Mirrored) DeleteDocument(ctx context.Context, id string) error {
	if err := m.Store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return m.index.DeleteByDocument(ctx, id)
}

// SearchFragments serves vector search from the index.
func (m *Mirrored) SearchFragments(ctx context.Context, embedding []float32, topK int) ([]quarry.ScoredFragment, error) {
	return m.index.SearchFragments(ctx, embedding, topK)
}
