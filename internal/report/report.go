package report

import (
	"github.com/sitevoice/sitevoice/internal/schema"
)

// Report is the persisted record for one voice note. Title, Summary
// and ReportType are nil until the first successful extraction commit.
type Report struct {
	ID                    string            `json:"id"`
	UserID                string            `json:"user_id"`
	Transcript            string            `json:"transcript,omitempty"`
	ReportType            *string           `json:"report_type,omitempty"`
	SchemaGen             schema.Generation `json:"schema_gen"`
	Title                 *string           `json:"title,omitempty"`
	Summary               *string           `json:"summary,omitempty"`
	Details               map[string]any    `json:"details,omitempty"`
	GeneratingTitle       bool              `json:"generating_title"`
	GeneratingActionItems bool              `json:"generating_action_items"`
	HasEmbedding          bool              `json:"has_embedding"`
	EmbeddingModel        string            `json:"embedding_model,omitempty"`
	ImageRefs             []string          `json:"image_refs,omitempty"`
	CreatedAt             int64             `json:"created_at"`
	UpdatedAt             int64             `json:"updated_at"`
}

// ActionItem is a short task derived from a report. The full set
// belonging to a report is replaced atomically on every successful
// re-extraction.
type ActionItem struct {
	ID        string `json:"id"`
	ReportID  string `json:"report_id"`
	UserID    string `json:"user_id"`
	Task      string `json:"task"`
	CreatedAt int64  `json:"created_at"`
}

// CandidateRecord is the schema-valid, coerced result of one
// extraction attempt, not yet committed. Details contains exactly the
// fields the registry requires for ReportType and nothing else.
type CandidateRecord struct {
	ReportType  string
	SchemaGen   schema.Generation
	Title       string
	Summary     string
	ActionItems []string
	Details     map[string]any
}
