package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sitevoice/sitevoice/internal/report"
	"github.com/sitevoice/sitevoice/internal/search"
	"github.com/sitevoice/sitevoice/internal/testutil"
)

const testModel = "test-embed-model"

type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, model, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func seedReport(t *testing.T, s *report.Store, userID string, vec []float64) string {
	t.Helper()
	ctx := context.Background()
	r, err := s.Create(ctx, report.CreateParams{UserID: userID, Transcript: "t"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if vec != nil {
		if err := s.SaveEmbedding(ctx, r.ID, testModel, vec); err != nil {
			t.Fatalf("SaveEmbedding: %v", err)
		}
	}
	return r.ID
}

func TestSearchOrderingAndScoping(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := report.NewStore(db)

	// user-a's reports at decreasing similarity to the query vector.
	near := seedReport(t, store, "user-a", []float64{1, 0, 0})
	mid := seedReport(t, store, "user-a", []float64{0.7, 0.7, 0})
	far := seedReport(t, store, "user-a", []float64{0, 1, 0})
	// user-b's report is a perfect match but must never be returned.
	seedReport(t, store, "user-b", []float64{1, 0, 0})
	// report without an embedding is invisible to search.
	seedReport(t, store, "user-a", nil)

	embedder := &fakeEmbedder{vectors: map[string][]float64{"concrete pour": {1, 0, 0}}}
	searcher := search.NewSearcher(db, embedder, testModel)

	results, err := searcher.Search(context.Background(), "user-a", "concrete pour", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(results), results)
	}
	if results[0].ReportID != near || results[1].ReportID != mid || results[2].ReportID != far {
		t.Errorf("order = %v, %v, %v", results[0].ReportID, results[1].ReportID, results[2].ReportID)
	}
	if results[0].Score <= results[1].Score || results[1].Score <= results[2].Score {
		t.Errorf("scores not descending: %+v", results)
	}
	for _, r := range results {
		if r.ReportID == "" {
			t.Error("empty report id in results")
		}
	}
}

func TestSearchNeverLeaksAcrossUsers(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := report.NewStore(db)

	foreign := seedReport(t, store, "user-b", []float64{1, 0, 0})

	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	searcher := search.NewSearcher(db, embedder, testModel)

	results, err := searcher.Search(context.Background(), "user-a", "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ReportID == foreign {
			t.Fatal("foreign report leaked into results")
		}
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for user-a, got %+v", results)
	}
}

func TestSearchLimit(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := report.NewStore(db)

	for i := 0; i < 5; i++ {
		seedReport(t, store, "user-a", []float64{1, float64(i) * 0.1, 0})
	}

	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	searcher := search.NewSearcher(db, embedder, testModel)

	results, err := searcher.Search(context.Background(), "user-a", "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestSearchSkipsMismatchedDimensions(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := report.NewStore(db)

	seedReport(t, store, "user-a", []float64{1, 0})       // 2-dim, skipped
	match := seedReport(t, store, "user-a", []float64{1, 0, 0}) // 3-dim

	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	searcher := search.NewSearcher(db, embedder, testModel)

	results, err := searcher.Search(context.Background(), "user-a", "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ReportID != match {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchValidation(t *testing.T) {
	db := testutil.OpenTestDB(t)
	embedder := &fakeEmbedder{vectors: map[string][]float64{}}
	searcher := search.NewSearcher(db, embedder, testModel)
	ctx := context.Background()

	if _, err := searcher.Search(ctx, "", "q", 5); err == nil {
		t.Error("expected error for empty user id")
	}
	if _, err := searcher.Search(ctx, "user-a", "   ", 5); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestSearchEmbedderFailure(t *testing.T) {
	db := testutil.OpenTestDB(t)
	embedder := &fakeEmbedder{err: errors.New("service down")}
	searcher := search.NewSearcher(db, embedder, testModel)

	if _, err := searcher.Search(context.Background(), "user-a", "q", 5); err == nil {
		t.Fatal("expected error when query embedding fails")
	}
}
