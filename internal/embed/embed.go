package embed

import (
	"context"
	"fmt"

	"github.com/sitevoice/sitevoice/internal/report"
)

// Embedder is the embedding-service surface the indexer needs.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float64, error)
}

// Indexer computes and stores transcript embeddings. Embedding is
// best-effort: a failure here never blocks classification, it only
// keeps the report out of similarity search until a retry succeeds.
type Indexer struct {
	store     *report.Store
	embedder  Embedder
	model     string
	dimension int
}

// NewIndexer creates an indexer. dimension 0 disables the length check.
func NewIndexer(store *report.Store, embedder Embedder, model string, dimension int) *Indexer {
	return &Indexer{store: store, embedder: embedder, model: model, dimension: dimension}
}

// Reembed computes a fresh vector for the transcript and overwrites
// any prior one.
func (ix *Indexer) Reembed(ctx context.Context, reportID, transcript string) error {
	values, err := ix.embedder.Embed(ctx, ix.model, transcript)
	if err != nil {
		return fmt.Errorf("embed transcript: %w", err)
	}
	if ix.dimension > 0 && len(values) != ix.dimension {
		return fmt.Errorf("embedding dimension %d, expected %d", len(values), ix.dimension)
	}
	if err := ix.store.SaveEmbedding(ctx, reportID, ix.model, values); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}
