// Package cache persists scan snapshots and in-flight scan checkpoints
// as human-inspectable JSON files, promoted atomically so readers never
// observe a half-written state.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sydlexius/mediarr/internal/filesystem"
	"github.com/sydlexius/mediarr/internal/media"
)

// ErrCheckpointCorrupt signals an unreadable or malformed checkpoint.
// Callers discard the checkpoint and restart the scan from scratch.
var ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

// Store owns snapshot and checkpoint persistence under one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With(slog.String("component", "cache")),
	}
}

func (s *Store) snapshotPath(section string, t media.Type) string {
	return filepath.Join(s.dir, fmt.Sprintf("snapshot_%s_%s.json", section, t))
}

func (s *Store) checkpointPath(scanKey string) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_%s.json", scanKey))
}

// LoadSnapshot reads the snapshot for a section and artwork type.
// Returns nil with no error when no snapshot exists.
func (s *Store) LoadSnapshot(section string, t media.Type) (*Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(section, t)) //nolint:gosec // G304: path built from validated inputs
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("discarding unreadable snapshot",
			"section", section, "type", string(t), "error", err)
		return nil, nil
	}
	return &snap, nil
}

// SaveSnapshot atomically writes the snapshot for its section and type.
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	snap.FormatVersion = FormatVersion

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	path := s.snapshotPath(snap.Section, snap.ActiveType)
	if err := filesystem.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		"section", snap.Section,
		"type", string(snap.ActiveType),
		"entries", len(snap.Entries),
		"partial", snap.Partial)
	return nil
}

// InvalidateSection removes all snapshots for a section.
func (s *Store) InvalidateSection(section string) error {
	for _, t := range media.Types {
		if err := os.Remove(s.snapshotPath(section, t)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing snapshot: %w", err)
		}
	}
	return nil
}

// InvalidateSiblings removes the section's snapshots of every type
// except keep. An incremental refresh rewrites only one type's
// snapshot; the others no longer reflect the directory set.
func (s *Store) InvalidateSiblings(section string, keep media.Type) error {
	for _, t := range media.Types {
		if t == keep {
			continue
		}
		if err := os.Remove(s.snapshotPath(section, t)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing snapshot: %w", err)
		}
	}
	return nil
}

// LoadCheckpoint reads the checkpoint for a scan key. A missing file
// returns nil; a malformed one returns ErrCheckpointCorrupt.
func (s *Store) LoadCheckpoint(scanKey string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(scanKey)) //nolint:gosec // G304: path built from validated inputs
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err) //nolint:errorlint // wrap sentinel, annotate cause
	}
	if cp.ScanKey != scanKey {
		return nil, fmt.Errorf("%w: key mismatch %q", ErrCheckpointCorrupt, cp.ScanKey)
	}
	return &cp, nil
}

// SaveCheckpoint atomically writes checkpoint state. Called after each
// committed batch; failure here is fatal to the scan run.
func (s *Store) SaveCheckpoint(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := filesystem.WriteFileAtomic(s.checkpointPath(cp.ScanKey), data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint deletes the checkpoint after a completed scan.
func (s *Store) ClearCheckpoint(scanKey string) error {
	if err := os.Remove(s.checkpointPath(scanKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}
