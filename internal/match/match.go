// Package match resolves media directories to TMDb titles. Resolution
// runs three tiers in order of trust: an id embedded in the directory
// name, a persisted manual mapping, and fuzzy title comparison against
// search results.
package match

import (
	"context"
	"log/slog"

	"github.com/agnivade/levenshtein"

	"github.com/sydlexius/mediarr/internal/mapping"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/tmdb"
)

// Threshold is the minimum title similarity for an automatic fuzzy
// match. Below it the directory stays unresolved rather than risking a
// wrong download.
const Threshold = 0.9

// Method records which tier resolved a directory.
type Method string

// Resolution methods.
const (
	MethodEmbedded Method = "embedded"
	MethodMapping  Method = "mapping"
	MethodFuzzy    Method = "fuzzy"
)

// Match is a successful resolution.
type Match struct {
	TMDbID     int     `json:"tmdb_id"`
	Title      string  `json:"title"`
	Year       int     `json:"year,omitempty"`
	Method     Method  `json:"method"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Searcher is the search surface the fuzzy tier needs from a TMDb client.
type Searcher interface {
	Search(ctx context.Context, kind media.Kind, title string, year int) ([]tmdb.SearchResult, error)
}

// Matcher resolves directories to titles.
type Matcher struct {
	search   Searcher
	mappings *mapping.Store
	logger   *slog.Logger
}

// NewMatcher creates a matcher. mappings may be nil, disabling that tier.
func NewMatcher(search Searcher, mappings *mapping.Store, logger *slog.Logger) *Matcher {
	return &Matcher{
		search:   search,
		mappings: mappings,
		logger:   logger.With(slog.String("component", "match")),
	}
}

// Resolve matches one scanned entry to a TMDb title. A nil result with
// a nil error means no tier produced a confident answer.
func (m *Matcher) Resolve(ctx context.Context, kind media.Kind, entry *media.Entry) (*Match, error) {
	if entry.TMDbID != 0 {
		return &Match{
			TMDbID: entry.TMDbID,
			Title:  entry.DisplayTitle(),
			Year:   entry.Year,
			Method: MethodEmbedded,
		}, nil
	}

	if m.mappings != nil {
		if id := m.mappings.DirectoryID(kind, entry.Title); id != 0 {
			return &Match{
				TMDbID: id,
				Title:  entry.DisplayTitle(),
				Year:   entry.Year,
				Method: MethodMapping,
			}, nil
		}
	}

	return m.fuzzy(ctx, kind, entry)
}

func (m *Matcher) fuzzy(ctx context.Context, kind media.Kind, entry *media.Entry) (*Match, error) {
	title := entry.DisplayTitle()
	results, err := m.search.Search(ctx, kind, title, entry.Year)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && entry.Year > 0 {
		// Year filters can be too strict for off-by-one release dates.
		results, err = m.search.Search(ctx, kind, title, 0)
		if err != nil {
			return nil, err
		}
	}

	var best *Match
	for _, r := range results {
		sim := Similarity(title, r.Title)
		if sim < Threshold {
			continue
		}
		if entry.Year > 0 && r.Year > 0 && abs(entry.Year-r.Year) > 1 {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{
				TMDbID:     r.ID,
				Title:      r.Title,
				Year:       r.Year,
				Method:     MethodFuzzy,
				Similarity: sim,
			}
		}
	}

	if best == nil {
		m.logger.Debug("no confident match", "title", title, "candidates", len(results))
		return nil, nil
	}

	// Remember the verdict so the next run skips the search.
	if m.mappings != nil {
		if err := m.mappings.SetDirectoryID(kind, entry.Title, best.TMDbID); err != nil {
			m.logger.Warn("persisting fuzzy match failed", "title", entry.Title, "error", err)
		}
	}
	return best, nil
}

// Similarity scores two titles in [0,1] using normalized edit distance
// over lowercased alphanumeric forms, so punctuation and case never
// break a match.
func Similarity(a, b string) float64 {
	na, nb := media.NormalizeTitle(a), media.NormalizeTitle(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	longest := max(len(na), len(nb))
	dist := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(dist)/float64(longest)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
