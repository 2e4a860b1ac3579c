// Package maintenance keeps the SQLite file healthy: periodic optimize,
// WAL checkpointing, and scan history pruning.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Status holds database maintenance status information.
type Status struct {
	DBFileSize  int64 `json:"db_file_size"`
	WALFileSize int64 `json:"wal_file_size"`
	PageCount   int64 `json:"page_count"`
	PageSize    int64 `json:"page_size"`
	ScanRuns    int64 `json:"scan_runs"`
}

// Service provides database maintenance operations.
type Service struct {
	db        *sql.DB
	dbPath    string
	retention time.Duration
	logger    *slog.Logger
}

// NewService creates a maintenance service. retention bounds how long
// scan runs are kept; zero keeps them forever.
func NewService(db *sql.DB, dbPath string, retention time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		dbPath:    dbPath,
		retention: retention,
		logger:    logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_runs").Scan(&st.ScanRuns); err != nil {
		s.logger.Warn("counting scan runs", "error", err)
	}

	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Info("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	return nil
}

// PruneHistory removes scan runs older than the retention window.
// Returns the number of rows removed.
func (s *Service) PruneHistory(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-s.retention).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning scan runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned scan history", "removed", n)
	}
	return n, nil
}

// StartScheduler runs optimize and history pruning on a fixed interval
// until the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", slog.Any("error", err))
			}
			if _, err := s.PruneHistory(ctx); err != nil {
				s.logger.Error("scheduled prune failed", slog.Any("error", err))
			}
		}
	}
}
