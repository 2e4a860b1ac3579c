// Package scanhistory records completed scan runs in SQLite.
package scanhistory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run modes.
const (
	ModeFull    = "full"
	ModeResume  = "resume"
	ModeRefresh = "refresh"
)

// Run describes one finished scan run.
type Run struct {
	ID               string     `json:"id"`
	ScanKey          string     `json:"scan_key"`
	Mode             string     `json:"mode"`
	Status           string     `json:"status"`
	TotalDirectories int        `json:"total_directories"`
	NewEntries       int        `json:"new_entries"`
	RemovedEntries   int        `json:"removed_entries"`
	UnscannedEntries int        `json:"unscanned_entries"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Service provides scan run persistence.
type Service struct {
	db *sql.DB
}

// NewService creates a scan history service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts a finished run.
func (s *Service) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	var completed any
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, scan_key, mode, status, total_directories,
			new_entries, removed_entries, unscanned_entries, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.ScanKey, run.Mode, run.Status, run.TotalDirectories,
		run.NewEntries, run.RemovedEntries, run.UnscannedEntries, run.Error,
		run.StartedAt.UTC().Format(time.RFC3339), completed,
	)
	if err != nil {
		return fmt.Errorf("recording scan run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first, up to limit.
func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_key, mode, status, total_directories,
			new_entries, removed_entries, unscanned_entries, error, started_at, completed_at
		FROM scan_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scan runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var completed sql.NullString
		if err := rows.Scan(&run.ID, &run.ScanKey, &run.Mode, &run.Status,
			&run.TotalDirectories, &run.NewEntries, &run.RemovedEntries,
			&run.UnscannedEntries, &run.Error, &started, &completed); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, started); err == nil {
			run.StartedAt = ts
		}
		if completed.Valid {
			if ts, err := time.Parse(time.RFC3339, completed.String); err == nil {
				run.CompletedAt = &ts
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
