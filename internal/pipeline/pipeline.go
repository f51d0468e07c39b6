package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/sitevoice/sitevoice/internal/extract"
	"github.com/sitevoice/sitevoice/internal/report"
)

// Indexer is the embedding surface the pipeline needs.
type Indexer interface {
	Reembed(ctx context.Context, reportID, transcript string) error
}

// Pipeline runs the transcript-to-structured-report stages for one
// report: begin processing, extract (or deterministic fallback),
// commit, then best-effort embedding. Stages are strictly sequential
// within a run; separate reports run fully in parallel with the store
// as the only shared state.
type Pipeline struct {
	db        *sql.DB
	store     *report.Store
	extractor *extract.Extractor
	indexer   Indexer
}

func New(db *sql.DB, store *report.Store, extractor *extract.Extractor, indexer Indexer) *Pipeline {
	return &Pipeline{db: db, store: store, extractor: extractor, indexer: indexer}
}

// Trigger starts a background run for the report. Concurrent runs for
// the same report are not ordered against each other; the last commit
// wins, which is safe because Commit replaces state wholesale.
func (p *Pipeline) Trigger(reportID string) {
	go func() {
		if err := p.Run(context.Background(), reportID); err != nil {
			log.Printf("[pipeline] run failed for %s: %v", reportID, err)
		}
	}()
}

// Run executes one pipeline pass synchronously. A hard extraction
// failure is resolved by committing the fallback record, so the report
// is never left with its processing flags raised because of an
// extractor error.
func (p *Pipeline) Run(ctx context.Context, reportID string) error {
	r, err := p.store.Get(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if r.Transcript == "" {
		return fmt.Errorf("report %s has no transcript", reportID)
	}

	if err := startRun(p.db, reportID); err != nil {
		return err
	}

	if err := p.store.BeginProcessing(ctx, reportID); err != nil {
		_ = finishRunError(p.db, reportID, PhaseExtract, err.Error())
		return fmt.Errorf("begin processing: %w", err)
	}

	rec, extractErr := p.extractor.Extract(ctx, r.Transcript, r.ImageRefs)
	if extractErr != nil {
		// rec is the deterministic fallback; commit it anyway so the
		// processing flags clear and the failure is explicit.
		log.Printf("[pipeline] extraction failed for %s, committing fallback: %v", reportID, extractErr)
	}

	_ = updateRunPhase(p.db, reportID, PhaseCommit)
	if err := p.store.Commit(ctx, reportID, rec); err != nil {
		_ = finishRunError(p.db, reportID, PhaseCommit, err.Error())
		return fmt.Errorf("commit extraction: %w", err)
	}

	_ = updateRunPhase(p.db, reportID, PhaseEmbed)
	if p.indexer != nil {
		embedCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		if err := p.indexer.Reembed(embedCtx, reportID, r.Transcript); err != nil {
			log.Printf("[pipeline] embedding failed for %s (retryable later): %v", reportID, err)
		}
		cancel()
	}

	if extractErr != nil {
		_ = finishRunError(p.db, reportID, PhaseEmbed, extractErr.Error())
	} else {
		_ = finishRunSuccess(p.db, reportID, PhaseEmbed)
	}
	return nil
}
