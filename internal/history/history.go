package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hookdeploy/internal/deployment"
	"hookdeploy/internal/security"
	"hookdeploy/pkg/fileutil"

	_ "modernc.org/sqlite"
)

// History manages deployment history in SQLite
type History struct {
	db *sql.DB
}

// NewHistory creates a new history tracker
func NewHistory(dbPath string) (*History, error) {
	if dir := filepath.Dir(dbPath); !fileutil.DirExists(dir) {
		if err := security.CreateSecureDir(dir, security.PermDirectory); err != nil {
			return nil, err
		}
	}

	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	// Initialize schema
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if fileutil.FileExists(dbPath) {
		if err := os.Chmod(dbPath, security.PermDBFile); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set database permissions: %w", err)
		}
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			ref TEXT NOT NULL DEFAULT '',
			repository TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			commit_hash TEXT,
			error_message TEXT,
			steps TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Create index for efficient queries
	_, err = h.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_run_id
		ON deployments(run_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordRun stores a finished deployment run.
func (h *History) RecordRun(ctx context.Context, run *deployment.Run) (int64, error) {
	return h.RecordDeployment(ctx, FromRun(run))
}

// RecordDeployment records a deployment in the history
func (h *History) RecordDeployment(ctx context.Context, record *DeploymentRecord) (int64, error) {
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339Nano)
		completedAt = &formatted
	}

	var steps *string
	if len(record.Steps) > 0 {
		data, err := json.Marshal(record.Steps)
		if err != nil {
			return 0, fmt.Errorf("failed to encode steps: %w", err)
		}
		encoded := string(data)
		steps = &encoded
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO deployments
		(run_id, branch, ref, repository, triggered_by, status, started_at, completed_at,
		 duration_seconds, commit_hash, error_message, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID,
		record.Branch,
		record.Ref,
		record.Repository,
		record.Trigger,
		record.Status,
		startedAt.UTC().Format(time.RFC3339Nano),
		completedAt,
		record.DurationSeconds,
		record.CommitHash,
		record.ErrorMessage,
		steps,
	)

	if err != nil {
		return 0, fmt.Errorf("failed to insert deployment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

const selectColumns = `
	SELECT id, run_id, branch, ref, repository, triggered_by, status, started_at,
	       completed_at, duration_seconds, commit_hash, error_message, steps
	FROM deployments`

// GetLatestDeployment returns the most recent deployment, or nil if none was recorded.
func (h *History) GetLatestDeployment(ctx context.Context) (*DeploymentRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+`
		ORDER BY id DESC
		LIMIT 1
	`)

	record, err := scanDeploymentRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deployment: %w", err)
	}

	return record, nil
}

// GetDeployment returns the deployment with the given run ID, or nil if unknown.
func (h *History) GetDeployment(ctx context.Context, runID string) (*DeploymentRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+`
		WHERE run_id = ?
	`, runID)

	record, err := scanDeploymentRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment %s: %w", runID, err)
	}

	return record, nil
}

// GetDeploymentHistory returns up to limit deployments, newest first.
func (h *History) GetDeploymentHistory(ctx context.Context, limit int) ([]DeploymentRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment history: %w", err)
	}
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		record, err := scanDeploymentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetSummary counts all recorded deployments by status.
func (h *History) GetSummary(ctx context.Context) (*Summary, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM deployments
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment summary: %w", err)
	}
	defer rows.Close()

	summary := &Summary{Status: make(map[string]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.Status[status] = count
		summary.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return summary, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDeploymentRecord scans a database row into a DeploymentRecord
// Works with both *sql.Row and *sql.Rows
func scanDeploymentRecord(s scanner) (*DeploymentRecord, error) {
	var record DeploymentRecord
	var startedAtStr string
	var completedAtStr sql.NullString
	var stepsStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.RunID,
		&record.Branch,
		&record.Ref,
		&record.Repository,
		&record.Trigger,
		&record.Status,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.CommitHash,
		&record.ErrorMessage,
		&stepsStr,
	)

	if err != nil {
		return nil, err
	}

	// Parse timestamps
	startedAt, err := time.Parse(time.RFC3339Nano, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339Nano, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	if stepsStr.Valid && stepsStr.String != "" {
		if err := json.Unmarshal([]byte(stepsStr.String), &record.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
	}

	return &record, nil
}
