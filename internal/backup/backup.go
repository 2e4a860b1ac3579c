// Package backup snapshots the application state: the SQLite database
// and the directory mapping file. Snapshot caches are rebuildable by a
// scan and are not backed up.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupPattern matches backup database filenames: mediarr-YYYYMMDD-HHMMSS.db
var backupPattern = regexp.MustCompile(`^mediarr-\d{8}-\d{6}\.db$`)

// Info describes one backup set.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Mappings  bool      `json:"mappings"`
}

// Service manages state backups.
type Service struct {
	db           *sql.DB
	mappingsPath string
	backupDir    string
	mu           sync.RWMutex
	retention    int
	logger       *slog.Logger
}

// NewService creates a backup service. mappingsPath may be empty when
// only the database should be backed up.
func NewService(db *sql.DB, mappingsPath, backupDir string, retention int, logger *slog.Logger) *Service {
	return &Service{
		db:           db,
		mappingsPath: mappingsPath,
		backupDir:    backupDir,
		retention:    retention,
		logger:       logger.With(slog.String("component", "backup")),
	}
}

// Backup snapshots the database with VACUUM INTO and copies the mapping
// file alongside it.
func (s *Service) Backup(ctx context.Context) (*Info, error) {
	if err := os.MkdirAll(s.backupDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := time.Now().UTC()
	stamp := now.Format("20060102-150405")
	filename := fmt.Sprintf("mediarr-%s.db", stamp)
	dest := filepath.Join(s.backupDir, filename)

	s.logger.Info("starting backup", slog.String("dest", dest))

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}

	info := &Info{Filename: filename, CreatedAt: now}
	if st, err := os.Stat(dest); err == nil {
		info.Size = st.Size()
	}

	if s.mappingsPath != "" {
		if err := s.copyMappings(stamp); err != nil {
			s.logger.Warn("backing up mapping file", "error", err)
		} else {
			info.Mappings = true
		}
	}

	s.logger.Info("backup complete",
		slog.String("filename", filename),
		slog.Int64("size", info.Size))

	return info, nil
}

func (s *Service) copyMappings(stamp string) error {
	data, err := os.ReadFile(s.mappingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	dest := filepath.Join(s.backupDir, fmt.Sprintf("mediarr-%s.mappings.json", stamp))
	return os.WriteFile(dest, data, 0o640)
}

// List returns all backup sets sorted by date descending.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !backupPattern.MatchString(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "mediarr-"), ".db")
		ts, err := time.Parse("20060102-150405", stamp)
		if err != nil {
			ts = fi.ModTime()
		}

		_, mapErr := os.Stat(filepath.Join(s.backupDir, "mediarr-"+stamp+".mappings.json"))

		backups = append(backups, Info{
			Filename:  entry.Name(),
			Size:      fi.Size(),
			CreatedAt: ts,
			Mappings:  mapErr == nil,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Delete removes one backup set by database filename.
func (s *Service) Delete(filename string) error {
	if !IsValidBackupFilename(filename) {
		return fmt.Errorf("invalid backup filename")
	}
	if err := os.Remove(filepath.Join(s.backupDir, filename)); err != nil {
		return fmt.Errorf("removing backup: %w", err)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(filename, "mediarr-"), ".db")
	os.Remove(filepath.Join(s.backupDir, "mediarr-"+stamp+".mappings.json"))
	s.logger.Info("backup deleted", slog.String("filename", filename))
	return nil
}

// Retention returns the current retention count.
func (s *Service) Retention() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// Prune deletes backup sets exceeding the retention count.
func (s *Service) Prune() error {
	s.mu.RLock()
	retention := s.retention
	s.mu.RUnlock()

	backups, err := s.List()
	if err != nil {
		return err
	}
	if retention <= 0 || len(backups) <= retention {
		return nil
	}
	for _, b := range backups[retention:] {
		if err := s.Delete(b.Filename); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", b.Filename),
				slog.Any("error", err))
			continue
		}
		s.logger.Info("pruned old backup", slog.String("filename", b.Filename))
	}
	return nil
}

// StartScheduler runs backups on a fixed interval until the context is
// canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("backup scheduler started",
		slog.String("interval", interval.String()),
		slog.Int("retention", s.Retention()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Backup(ctx); err != nil {
				s.logger.Error("scheduled backup failed", slog.Any("error", err))
				continue
			}
			if err := s.Prune(); err != nil {
				s.logger.Error("backup prune failed", slog.Any("error", err))
			}
		}
	}
}

// IsValidBackupFilename checks that a filename matches the expected
// backup pattern and contains no path traversal characters.
func IsValidBackupFilename(filename string) bool {
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") || strings.Contains(filename, "..") {
		return false
	}
	return backupPattern.MatchString(filename)
}
