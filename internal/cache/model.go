package cache

import (
	"time"

	"github.com/sydlexius/mediarr/internal/media"
)

// FormatVersion is stamped into every snapshot. Version 2 introduced
// joint capture of all three presence flags per directory listing,
// which is what makes cross-type derivation possible.
const FormatVersion = 2

// Snapshot is the persisted result of one scan over a root set, labeled
// with the artwork type it was requested for. All three presence flags
// are populated regardless of the active type.
type Snapshot struct {
	FormatVersion int           `json:"format_version"`
	ActiveType    media.Type    `json:"active_type"`
	Section       string        `json:"section"`
	Roots         []string      `json:"roots"`
	Entries       []media.Entry `json:"entries"`
	CompletedAt   time.Time     `json:"completed_at"`
	Partial       bool          `json:"partial"`
}

// SupportsDerivation reports whether this snapshot carries joint
// presence flags and can seed a snapshot of another artwork type.
func (s *Snapshot) SupportsDerivation() bool {
	return s.FormatVersion >= 2
}

// CoversRoots reports whether the snapshot was built from exactly the
// given root set, in order.
func (s *Snapshot) CoversRoots(roots []string) bool {
	if len(s.Roots) != len(roots) {
		return false
	}
	for i := range roots {
		if s.Roots[i] != roots[i] {
			return false
		}
	}
	return true
}

// Checkpoint records in-flight scan progress so an interrupted scan can
// resume without revisiting completed directories.
type Checkpoint struct {
	ScanKey   string        `json:"scan_key"`
	Roots     []string      `json:"roots"`
	Pending   []string      `json:"pending"`
	Processed []media.Entry `json:"processed"`
	Cursor    int           `json:"cursor"`
	StartedAt time.Time     `json:"started_at"`
}
