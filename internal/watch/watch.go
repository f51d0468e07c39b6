package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sitevoice/sitevoice/internal/pipeline"
	"github.com/sitevoice/sitevoice/internal/report"
)

// Watcher observes an inbox directory for transcript files. A dropped
// <noteID>.txt file is the transcript-ready trigger: its contents
// become the report transcript and a pipeline run is started. This is
// the boundary to the upstream transcription subsystem.
type Watcher struct {
	store    *report.Store
	pipeline *pipeline.Pipeline
	inboxDir string
	userID   string
}

func New(store *report.Store, p *pipeline.Pipeline, inboxDir, userID string) *Watcher {
	return &Watcher{store: store, pipeline: p, inboxDir: inboxDir, userID: userID}
}

// Run watches until ctx is cancelled. Files already present in the
// inbox at startup are processed first.
func (w *Watcher) Run(ctx context.Context) error {
	if w.userID == "" {
		return fmt.Errorf("watch: user id is required")
	}
	if err := os.MkdirAll(w.inboxDir, 0755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.inboxDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.inboxDir, err)
	}

	log.Printf("[watch] watching %s for transcript files", w.inboxDir)

	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		return fmt.Errorf("read inbox dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.ingest(ctx, filepath.Join(w.inboxDir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Writers may still be flushing; give them a beat.
			time.Sleep(200 * time.Millisecond)
			w.ingest(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] watcher error: %v", err)
		}
	}
}

// ingest creates a report from a transcript file and triggers its
// pipeline run. The file name stem becomes the note id, so re-writing
// the same file re-processes the same report.
func (w *Watcher) ingest(ctx context.Context, path string) {
	if !strings.HasSuffix(path, ".txt") {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[watch] read %s: %v", path, err)
		return
	}
	transcript := strings.TrimSpace(string(data))
	if transcript == "" {
		return
	}

	noteID := strings.TrimSuffix(filepath.Base(path), ".txt")

	if _, err := w.store.Get(ctx, noteID); err == report.ErrNotFound {
		if _, err := w.store.Create(ctx, report.CreateParams{
			ID:         noteID,
			UserID:     w.userID,
			Transcript: transcript,
		}); err != nil {
			log.Printf("[watch] create report %s: %v", noteID, err)
			return
		}
	} else if err != nil {
		log.Printf("[watch] load report %s: %v", noteID, err)
		return
	}

	log.Printf("[watch] triggering pipeline for %s", noteID)
	w.pipeline.Trigger(noteID)
}
