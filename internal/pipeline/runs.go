package pipeline

import (
	"database/sql"
	"fmt"
	"time"
)

// Run phases, in pipeline order.
const (
	PhaseExtract = "extract"
	PhaseCommit  = "commit"
	PhaseEmbed   = "embed"
)

// RunStatus mirrors one pipeline_runs row. A row left in 'running'
// after a crash is visible here and repaired by re-running the
// pipeline for that report.
type RunStatus struct {
	ReportID  string  `json:"report_id"`
	Status    string  `json:"status"`
	Phase     string  `json:"phase"`
	StartedAt *int64  `json:"started_at,omitempty"`
	UpdatedAt int64   `json:"updated_at"`
	LastError *string `json:"last_error,omitempty"`
}

func startRun(db *sql.DB, reportID string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO pipeline_runs (report_id, status, phase, started_at, updated_at, last_error)
		VALUES (?, 'running', ?, ?, ?, NULL)
		ON CONFLICT(report_id) DO UPDATE SET
			status = 'running',
			phase = excluded.phase,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			last_error = NULL
	`, reportID, PhaseExtract, now, now)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

func updateRunPhase(db *sql.DB, reportID, phase string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		UPDATE pipeline_runs SET phase = ?, updated_at = ? WHERE report_id = ?
	`, phase, now, reportID)
	if err != nil {
		return fmt.Errorf("failed to update run phase: %w", err)
	}
	return nil
}

func finishRunSuccess(db *sql.DB, reportID, phase string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		UPDATE pipeline_runs SET status = 'success', phase = ?, updated_at = ?, last_error = NULL
		WHERE report_id = ?
	`, phase, now, reportID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func finishRunError(db *sql.DB, reportID, phase, errMsg string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		UPDATE pipeline_runs SET status = 'error', phase = ?, updated_at = ?, last_error = ?
		WHERE report_id = ?
	`, phase, now, errMsg, reportID)
	if err != nil {
		return fmt.Errorf("failed to finish run with error: %w", err)
	}
	return nil
}

// ListRuns returns all pipeline runs, most recently updated first.
func ListRuns(db *sql.DB) ([]RunStatus, error) {
	rows, err := db.Query(`
		SELECT report_id, status, phase, started_at, updated_at, last_error
		FROM pipeline_runs ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunStatus
	for rows.Next() {
		var rs RunStatus
		var startedAt sql.NullInt64
		var lastErr sql.NullString
		if err := rows.Scan(&rs.ReportID, &rs.Status, &rs.Phase, &startedAt, &rs.UpdatedAt, &lastErr); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if startedAt.Valid {
			v := startedAt.Int64
			rs.StartedAt = &v
		}
		if lastErr.Valid {
			rs.LastError = &lastErr.String
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating run rows: %w", err)
	}
	return out, nil
}
