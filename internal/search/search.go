package search

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/sitevoice/sitevoice/internal/vector"
)

const defaultLimit = 16

// Embedder generates an embedding for a query.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float64, error)
}

// Searcher performs nearest-neighbor lookup over report embeddings.
// It applies no relevance threshold; callers discard low scores
// themselves (the UI drops anything at or below 0.6).
type Searcher struct {
	db       *sql.DB
	embedder Embedder
	model    string
}

func NewSearcher(db *sql.DB, embedder Embedder, model string) *Searcher {
	return &Searcher{db: db, embedder: embedder, model: model}
}

// Result is one similarity hit.
type Result struct {
	ReportID string  `json:"id"`
	Score    float64 `json:"score"`
}

// Search embeds the query and returns up to limit reports owned by
// userID, ordered by descending cosine similarity. Reports owned by
// other users are never considered, regardless of similarity.
func (s *Searcher) Search(ctx context.Context, userID, query string, limit int) ([]Result, error) {
	if s.db == nil {
		return nil, errors.New("search: db is nil")
	}
	if userID == "" {
		return nil, errors.New("search: user id is required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search: query is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	if s.embedder == nil {
		return nil, errors.New("search: embedder not configured")
	}
	queryEmbedding, err := s.embedder.Embed(ctx, s.model, query)
	if err != nil || len(queryEmbedding) == 0 {
		return nil, errors.New("search: failed to generate query embedding")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding_blob, embedding_dim
		FROM reports
		WHERE user_id = ? AND embedding_blob IS NOT NULL AND embedding_model = ?
	`, userID, s.model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var reportID string
		var blob []byte
		var dim int
		if err := rows.Scan(&reportID, &blob, &dim); err != nil {
			continue
		}
		if dim != len(queryEmbedding) {
			continue
		}
		embedding := vector.FromBlob(blob)
		if len(embedding) != len(queryEmbedding) {
			continue
		}
		results = append(results, Result{
			ReportID: reportID,
			Score:    vector.Cosine(queryEmbedding, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
