package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitevoice/sitevoice/internal/schema"
	"github.com/sitevoice/sitevoice/internal/vector"
)

// Store reads and mutates report rows. The processing flags written
// here are the only signal concurrent readers get; no lock is held
// across external calls.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateParams describes a new report. ID is generated when empty.
type CreateParams struct {
	ID         string
	UserID     string
	Transcript string
	ImageRefs  []string
}

// Create inserts a new unclassified report.
func (s *Store) Create(ctx context.Context, p CreateParams) (Report, error) {
	if p.UserID == "" {
		return Report{}, fmt.Errorf("user id is required")
	}
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().Unix()

	var imageRefs any
	if len(p.ImageRefs) > 0 {
		b, err := json.Marshal(p.ImageRefs)
		if err != nil {
			return Report{}, fmt.Errorf("failed to marshal image refs: %w", err)
		}
		imageRefs = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, user_id, transcript, schema_gen, image_refs_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, p.UserID, p.Transcript, schema.GenCurrent, imageRefs, now, now)
	if err != nil {
		return Report{}, fmt.Errorf("failed to insert report: %w", err)
	}

	return s.Get(ctx, id)
}

// Get loads one report. Detail fields are run through the registry
// defaulting for the row's stored generation, so rows written under an
// older schema read the same way new ones do.
func (s *Store) Get(ctx context.Context, id string) (Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, transcript, report_type, schema_gen, title, summary,
		       details_json, generating_title, generating_action_items,
		       embedding_blob, embedding_model, image_refs_json, created_at, updated_at
		FROM reports WHERE id = ?
	`, id)
	return scanReport(row)
}

// GetOwned loads a report only if it belongs to userID.
func (s *Store) GetOwned(ctx context.Context, id, userID string) (Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, transcript, report_type, schema_gen, title, summary,
		       details_json, generating_title, generating_action_items,
		       embedding_blob, embedding_model, image_refs_json, created_at, updated_at
		FROM reports WHERE id = ? AND user_id = ?
	`, id, userID)
	return scanReport(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (Report, error) {
	var r Report
	var transcript, reportType, title, summary, detailsJSON, embeddingModel, imageRefsJSON sql.NullString
	var schemaGen int
	var generatingTitle, generatingActionItems int
	var embeddingBlob []byte

	err := row.Scan(&r.ID, &r.UserID, &transcript, &reportType, &schemaGen, &title, &summary,
		&detailsJSON, &generatingTitle, &generatingActionItems,
		&embeddingBlob, &embeddingModel, &imageRefsJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to scan report: %w", err)
	}

	r.SchemaGen = schema.Generation(schemaGen)
	if transcript.Valid {
		r.Transcript = transcript.String
	}
	if reportType.Valid {
		r.ReportType = &reportType.String
	}
	if title.Valid {
		r.Title = &title.String
	}
	if summary.Valid {
		r.Summary = &summary.String
	}
	r.GeneratingTitle = generatingTitle != 0
	r.GeneratingActionItems = generatingActionItems != 0
	r.HasEmbedding = len(embeddingBlob) > 0
	if embeddingModel.Valid {
		r.EmbeddingModel = embeddingModel.String
	}
	if imageRefsJSON.Valid && imageRefsJSON.String != "" {
		var refs []string
		if err := json.Unmarshal([]byte(imageRefsJSON.String), &refs); err == nil {
			r.ImageRefs = refs
		}
	}

	if r.ReportType != nil {
		raw := map[string]any{}
		if detailsJSON.Valid && detailsJSON.String != "" {
			_ = json.Unmarshal([]byte(detailsJSON.String), &raw)
		}
		r.Details = schema.CoerceDetails(r.SchemaGen, *r.ReportType, raw)
	}

	return r, nil
}

// ErrNotFound is returned when a report does not exist (or is not
// owned by the requesting user).
var ErrNotFound = sql.ErrNoRows

// ListByUser returns all reports owned by userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, transcript, report_type, schema_gen, title, summary,
		       details_json, generating_title, generating_action_items,
		       embedding_blob, embedding_model, image_refs_json, created_at, updated_at
		FROM reports WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActionItems returns the action items of a report in insertion order.
func (s *Store) ActionItems(ctx context.Context, reportID string) ([]ActionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, user_id, task, created_at
		FROM action_items WHERE report_id = ? ORDER BY rowid ASC
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action items: %w", err)
	}
	defer rows.Close()

	var out []ActionItem
	for rows.Next() {
		var item ActionItem
		if err := rows.Scan(&item.ID, &item.ReportID, &item.UserID, &item.Task, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// BeginProcessing raises both processing flags and clears the previous
// classification so a client reading mid-flight sees "processing",
// never stale-but-final-looking data.
func (s *Store) BeginProcessing(ctx context.Context, id string) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET
			generating_title = 1,
			generating_action_items = 1,
			report_type = NULL,
			title = NULL,
			summary = NULL,
			details_json = NULL,
			updated_at = ?
		WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark report processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Commit applies an extracted candidate in one transaction: patch the
// classification fields, replace the action-item set wholesale, and
// clear both processing flags. Re-running Commit with the same
// candidate yields the same final state because the old items are
// unconditionally deleted before the new ones are inserted.
func (s *Store) Commit(ctx context.Context, id string, c CandidateRecord) error {
	detailsJSON, err := json.Marshal(c.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID string
	if err := tx.QueryRowContext(ctx, `SELECT user_id FROM reports WHERE id = ?`, id).Scan(&userID); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load report owner: %w", err)
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		UPDATE reports SET
			report_type = ?,
			schema_gen = ?,
			title = ?,
			summary = ?,
			details_json = ?,
			generating_title = 0,
			generating_action_items = 0,
			updated_at = ?
		WHERE id = ?
	`, c.ReportType, c.SchemaGen, c.Title, c.Summary, string(detailsJSON), now, id)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM action_items WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete action items: %w", err)
	}

	for _, task := range c.ActionItems {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO action_items (id, report_id, user_id, task, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, uuid.New().String(), id, userID, task, now)
		if err != nil {
			return fmt.Errorf("failed to insert action item: %w", err)
		}
	}

	return tx.Commit()
}

// SaveEmbedding stores the transcript embedding, overwriting any prior
// vector.
func (s *Store) SaveEmbedding(ctx context.Context, id, model string, values []float64) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET
			embedding_blob = ?,
			embedding_model = ?,
			embedding_dim = ?,
			updated_at = ?
		WHERE id = ?
	`, vector.ToBlob(values), model, len(values), now, id)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddImageRefs appends opaque image storage identifiers to a report.
// Image references are independent of classification.
func (s *Store) AddImageRefs(ctx context.Context, id string, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	merged := append(append([]string{}, r.ImageRefs...), refs...)
	b, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal image refs: %w", err)
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		UPDATE reports SET image_refs_json = ?, updated_at = ? WHERE id = ?
	`, string(b), now, id)
	if err != nil {
		return fmt.Errorf("failed to update image refs: %w", err)
	}
	return nil
}
