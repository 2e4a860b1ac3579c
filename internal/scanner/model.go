package scanner

import (
	"github.com/sydlexius/mediarr/internal/cache"
	"github.com/sydlexius/mediarr/internal/media"
)

// Progress is the polled view of an in-flight scan.
type Progress struct {
	ScanKey        string `json:"scan_key"`
	ProcessedCount int    `json:"processed_count"`
	TotalCount     int    `json:"total_count"`
	Done           bool   `json:"done"`
	Error          string `json:"error,omitempty"`
}

// Status is the non-blocking answer to a snapshot request: either a
// usable snapshot, or word that a scan is running (with its progress).
type Status struct {
	Snapshot   *cache.Snapshot `json:"snapshot,omitempty"`
	InProgress bool            `json:"in_progress"`
	Progress   *Progress       `json:"progress,omitempty"`
}

// Stats summarizes artwork coverage for one snapshot, with
// confirmed-unavailable items broken out from genuinely missing ones.
type Stats struct {
	Total       int `json:"total"`
	WithArtwork int `json:"with_artwork"`
	Missing     int `json:"missing"`
	Unavailable int `json:"unavailable"`
	Unscanned   int `json:"unscanned"`
}

// UnavailabilityLookup reports whether an item's artwork is known to be
// unavailable on the metadata source. Owned by the mapping collaborator;
// the scan core only consumes it.
type UnavailabilityLookup func(kind media.Kind, tmdbID int, t media.Type) bool

// ComputeStats tallies coverage for the snapshot's active type. Entries
// whose artwork is confirmed unavailable are excluded from the missing
// count, so "missing" means "not yet sourced", not "cannot be sourced".
func ComputeStats(snap *cache.Snapshot, kind media.Kind, lookup UnavailabilityLookup) Stats {
	var st Stats
	for i := range snap.Entries {
		e := &snap.Entries[i]
		st.Total++
		switch {
		case e.Unscanned:
			st.Unscanned++
		case e.Has(snap.ActiveType):
			st.WithArtwork++
		case lookup != nil && e.TMDbID != 0 && lookup(kind, e.TMDbID, snap.ActiveType):
			st.Unavailable++
		default:
			st.Missing++
		}
	}
	return st
}
