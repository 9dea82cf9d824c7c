package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jengzang/records-cluster-go/internal/models"
)

// ScanRunRepository handles database operations for scan runs
type ScanRunRepository struct {
	db *sql.DB
}

// NewScanRunRepository creates a new scan run repository
func NewScanRunRepository(db *sql.DB) *ScanRunRepository {
	return &ScanRunRepository{db: db}
}

// Create creates a new pending scan run
func (r *ScanRunRepository) Create(run *models.ScanRun) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to serialize scan params: %w", err)
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	result, err := r.db.Exec(`
		INSERT INTO scan_runs (point_set_id, strategy, status, params_json, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, run.PointSetID, run.Strategy, run.Status, string(params), run.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to create scan run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

const scanRunColumns = `
	id, point_set_id, strategy, status, params_json, progress_percent,
	cluster_count, result_summary, error_message, created_by,
	created_at, started_at, completed_at, updated_at
`

func scanRun(row rowScanner) (*models.ScanRun, error) {
	run := &models.ScanRun{}
	var params, summary string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.PointSetID, &run.Strategy, &run.Status, &params, &run.ProgressPercent,
		&run.ClusterCount, &summary, &run.ErrorMessage, &run.CreatedBy,
		&run.CreatedAt, &startedAt, &completedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if params != "" {
		if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of run %d: %w", run.ID, err)
		}
	}
	if summary != "" {
		run.ResultSummary = &models.ScanSummary{}
		if err := json.Unmarshal([]byte(summary), run.ResultSummary); err != nil {
			return nil, fmt.Errorf("failed to decode summary of run %d: %w", run.ID, err)
		}
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetByID retrieves a scan run by ID
func (r *ScanRunRepository) GetByID(id int64) (*models.ScanRun, error) {
	query := "SELECT " + scanRunColumns + " FROM scan_runs WHERE id = ?"

	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan run: %w", err)
	}
	return run, nil
}

// List retrieves scan runs with optional filters, newest first
func (r *ScanRunRepository) List(filter models.ScanRunFilter) ([]*models.ScanRun, error) {
	query := "SELECT " + scanRunColumns + " FROM scan_runs WHERE 1=1"

	args := []interface{}{}
	if filter.PointSetID != "" {
		query += " AND point_set_id = ?"
		args = append(args, filter.PointSetID)
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkAsRunning marks a run as running
func (r *ScanRunRepository) MarkAsRunning(id int64) error {
	_, err := r.db.Exec(`
		UPDATE scan_runs
		SET status = ?,
		    started_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, models.RunStatusRunning, id)
	if err != nil {
		return fmt.Errorf("failed to mark scan run as running: %w", err)
	}
	return nil
}

// UpdateProgress records the percentage of work done
func (r *ScanRunRepository) UpdateProgress(id int64, percent float64) error {
	_, err := r.db.Exec(`
		UPDATE scan_runs
		SET progress_percent = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, percent, id)
	if err != nil {
		return fmt.Errorf("failed to update scan run progress: %w", err)
	}
	return nil
}

// MarkAsCompleted marks a run as completed with its summary
func (r *ScanRunRepository) MarkAsCompleted(id int64, clusters int, summary *models.ScanSummary) error {
	summaryJSON := ""
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to serialize scan summary: %w", err)
		}
		summaryJSON = string(b)
	}

	_, err := r.db.Exec(`
		UPDATE scan_runs
		SET status = ?,
		    progress_percent = 100,
		    cluster_count = ?,
		    result_summary = ?,
		    completed_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, models.RunStatusCompleted, clusters, summaryJSON, id)
	if err != nil {
		return fmt.Errorf("failed to mark scan run as completed: %w", err)
	}
	return nil
}

// MarkAsFailed marks a run as failed with an error message
func (r *ScanRunRepository) MarkAsFailed(id int64, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE scan_runs
		SET status = ?,
		    error_message = ?,
		    completed_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, models.RunStatusFailed, errorMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark scan run as failed: %w", err)
	}
	return nil
}
