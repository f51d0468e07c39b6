package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitevoice/sitevoice/internal/extract"
	"github.com/sitevoice/sitevoice/internal/pipeline"
	"github.com/sitevoice/sitevoice/internal/report"
	"github.com/sitevoice/sitevoice/internal/schema"
	"github.com/sitevoice/sitevoice/internal/testutil"
	"github.com/sitevoice/sitevoice/internal/together"
	"github.com/sitevoice/sitevoice/internal/watch"
)

type fakeCompleter struct{}

func (fakeCompleter) Complete(ctx context.Context, req together.CompletionRequest) (string, error) {
	return `{
		"reportType": "GENERAL",
		"title": "Walkthrough",
		"summary": "All clear.",
		"actionItems": [],
		"generalDetails": {"observations": [], "progress": "done", "nextSteps": []}
	}`, nil
}

func TestWatcherIngestsExistingFile(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := report.NewStore(db)
	p := pipeline.New(db, store, extract.New(fakeCompleter{}, []string{"m"}), nil)

	inbox := t.TempDir()
	if err := os.WriteFile(filepath.Join(inbox, "note-1.txt"), []byte("morning walkthrough, all clear"), 0644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	// Non-transcript files are ignored.
	if err := os.WriteFile(filepath.Join(inbox, "ignore.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("write decoy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := watch.New(store, p, inbox, "field-user")
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watcher creates the report synchronously at startup; the
	// pipeline run it triggers is asynchronous, so poll for the commit.
	deadline := time.After(5 * time.Second)
	for {
		r, err := store.Get(ctx, "note-1")
		if err == nil && r.ReportType != nil {
			if *r.ReportType != schema.TypeGeneral {
				t.Errorf("reportType = %q", *r.ReportType)
			}
			if r.UserID != "field-user" {
				t.Errorf("userID = %q", r.UserID)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("report was never committed")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if _, err := store.Get(ctx, "ignore"); err != report.ErrNotFound {
		t.Errorf("non-txt file was ingested: %v", err)
	}

	cancel()
	if err := <-done; err != nil && err != context.Canceled {
		t.Fatalf("Run: %v", err)
	}
}

func TestWatcherRequiresUser(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := report.NewStore(db)
	p := pipeline.New(db, store, extract.New(fakeCompleter{}, []string{"m"}), nil)

	w := watch.New(store, p, t.TempDir(), "")
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error without a user id")
	}
}
