// Package mapping persists two small lookup tables as one JSON file:
// directory-name-to-TMDb-id assignments made by hand or by fuzzy match,
// and confirmed artwork unavailability per title and artwork type.
// Unavailability keeps "missing because nobody fetched it yet" apart
// from "missing because the provider has none".
package mapping

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sydlexius/mediarr/internal/filesystem"
	"github.com/sydlexius/mediarr/internal/media"
)

// Record is one unavailability observation.
type Record struct {
	Available   bool      `json:"available"`
	LastChecked time.Time `json:"last_checked"`
}

// fileModel is the on-disk shape.
type fileModel struct {
	// Directories maps kind → directory name → TMDb id.
	Directories map[string]map[string]int `json:"directories"`
	// Availability maps kind → TMDb id → artwork type → record.
	Availability map[string]map[string]map[string]Record `json:"artwork_availability"`
}

// Store owns the mapping file. All mutations persist atomically before
// returning.
type Store struct {
	path    string
	recheck time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.RWMutex
	model fileModel
}

// NewStore loads the mapping file at path, starting empty when it does
// not exist. recheck bounds how long an unavailability verdict is
// trusted; zero means forever.
func NewStore(path string, recheck time.Duration, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		recheck: recheck,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "mapping")),
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading mapping file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.model); err != nil {
			return nil, fmt.Errorf("parsing mapping file: %w", err)
		}
	}

	if s.model.Directories == nil {
		s.model.Directories = make(map[string]map[string]int)
	}
	if s.model.Availability == nil {
		s.model.Availability = make(map[string]map[string]map[string]Record)
	}
	return s, nil
}

// DirectoryID returns the mapped TMDb id for a directory name, zero
// when unmapped.
func (s *Store) DirectoryID(kind media.Kind, dirName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Directories[string(kind)][dirName]
}

// SetDirectoryID records a directory-to-id assignment.
func (s *Store) SetDirectoryID(kind media.Kind, dirName string, tmdbID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.model.Directories[string(kind)]
	if byName == nil {
		byName = make(map[string]int)
		s.model.Directories[string(kind)] = byName
	}
	byName[dirName] = tmdbID
	return s.saveLocked()
}

// MarkUnavailable records that the provider has no artwork of this type
// for the title.
func (s *Store) MarkUnavailable(kind media.Kind, tmdbID int, t media.Type) error {
	return s.setAvailability(kind, tmdbID, t, false)
}

// MarkAvailable clears an unavailability verdict, recording a positive
// observation instead.
func (s *Store) MarkAvailable(kind media.Kind, tmdbID int, t media.Type) error {
	return s.setAvailability(kind, tmdbID, t, true)
}

// Reset removes the record entirely, so the next pipeline run checks
// the provider again.
func (s *Store) Reset(kind media.Kind, tmdbID int, t media.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.model.Availability[string(kind)]
	if byID == nil {
		return nil
	}
	byType := byID[strconv.Itoa(tmdbID)]
	if byType == nil {
		return nil
	}
	delete(byType, string(t))
	if len(byType) == 0 {
		delete(byID, strconv.Itoa(tmdbID))
	}
	return s.saveLocked()
}

// Unavailable reports whether the title's artwork of this type is
// confirmed absent upstream. Verdicts older than the recheck window are
// ignored, so the title becomes eligible for another provider check.
func (s *Store) Unavailable(kind media.Kind, tmdbID int, t media.Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.model.Availability[string(kind)][strconv.Itoa(tmdbID)][string(t)]
	if !ok || rec.Available {
		return false
	}
	if s.recheck > 0 && s.now().Sub(rec.LastChecked) > s.recheck {
		return false
	}
	return true
}

// UnavailableCount tallies confirmed-unavailable records for a kind.
func (s *Store) UnavailableCount(kind media.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byType := range s.model.Availability[string(kind)] {
		for _, rec := range byType {
			if !rec.Available {
				n++
			}
		}
	}
	return n
}

func (s *Store) setAvailability(kind media.Kind, tmdbID int, t media.Type, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.model.Availability[string(kind)]
	if byID == nil {
		byID = make(map[string]map[string]Record)
		s.model.Availability[string(kind)] = byID
	}
	id := strconv.Itoa(tmdbID)
	if byID[id] == nil {
		byID[id] = make(map[string]Record)
	}
	byID[id][string(t)] = Record{Available: available, LastChecked: s.now().UTC()}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(&s.model, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mapping file: %w", err)
	}
	if err := filesystem.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing mapping file: %w", err)
	}
	return nil
}
