// Package media defines the artwork vocabulary shared across the
// application: artwork types, filename conventions, and the per-directory
// entry model produced by scans.
package media

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Type identifies an artwork category.
type Type string

// Known artwork types.
const (
	TypePoster   Type = "poster"
	TypeBackdrop Type = "backdrop"
	TypeLogo     Type = "logo"
)

// Types lists all artwork types in display order.
var Types = []Type{TypePoster, TypeBackdrop, TypeLogo}

// ParseType validates a string as an artwork type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypePoster, TypeBackdrop, TypeLogo:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown artwork type %q", s)
}

// Extensions returns the candidate file extensions for an artwork type,
// in detection priority order. Logos prefer PNG for transparency.
func (t Type) Extensions() []string {
	if t == TypeLogo {
		return []string{"png", "jpg", "jpeg"}
	}
	return []string{"jpg", "jpeg", "png"}
}

// FileNames returns the canonical filenames checked for this type,
// e.g. poster.jpg, poster.jpeg, poster.png.
func (t Type) FileNames() []string {
	exts := t.Extensions()
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, string(t)+"."+ext)
	}
	return names
}

// ThumbName returns the thumbnail filename for a canonical artwork file,
// following the <type>-thumb.<ext> convention.
func (t Type) ThumbName(ext string) string {
	return string(t) + "-thumb." + ext
}

// Kind distinguishes movie libraries from TV libraries.
type Kind string

// Library kinds.
const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// Entry is the scan record for one media directory.
type Entry struct {
	Title   string `json:"title"`
	Path    string `json:"path"`
	CleanID string `json:"clean_id"`
	Year    int    `json:"year,omitempty"`
	TMDbID  int    `json:"tmdb_id,omitempty"`

	HasPoster   bool `json:"has_poster"`
	HasBackdrop bool `json:"has_backdrop"`
	HasLogo     bool `json:"has_logo"`

	// File names of the detected canonical artwork, when present.
	PosterFile   string `json:"poster_file,omitempty"`
	BackdropFile string `json:"backdrop_file,omitempty"`
	LogoFile     string `json:"logo_file,omitempty"`

	// Thumbnail presence observed during the same listing.
	PosterThumb   string `json:"poster_thumb,omitempty"`
	BackdropThumb string `json:"backdrop_thumb,omitempty"`
	LogoThumb     string `json:"logo_thumb,omitempty"`

	// Unscanned marks directories whose listing exhausted its retry
	// budget; presence flags are unknown, not false.
	Unscanned bool `json:"unscanned,omitempty"`
}

// Has reports artwork presence for the given type.
func (e *Entry) Has(t Type) bool {
	switch t {
	case TypeBackdrop:
		return e.HasBackdrop
	case TypeLogo:
		return e.HasLogo
	default:
		return e.HasPoster
	}
}

// SetHas records artwork presence and the detected file name.
func (e *Entry) SetHas(t Type, file string) {
	switch t {
	case TypeBackdrop:
		e.HasBackdrop = file != ""
		e.BackdropFile = file
	case TypeLogo:
		e.HasLogo = file != ""
		e.LogoFile = file
	case TypePoster:
		e.HasPoster = file != ""
		e.PosterFile = file
	}
}

// ArtworkFile returns the detected canonical file name for the type.
func (e *Entry) ArtworkFile(t Type) string {
	switch t {
	case TypeBackdrop:
		return e.BackdropFile
	case TypeLogo:
		return e.LogoFile
	default:
		return e.PosterFile
	}
}

// ThumbFile returns the detected thumbnail file name for the type.
func (e *Entry) ThumbFile(t Type) string {
	switch t {
	case TypeBackdrop:
		return e.BackdropThumb
	case TypeLogo:
		return e.LogoThumb
	default:
		return e.PosterThumb
	}
}

// SetThumb records a detected thumbnail file name.
func (e *Entry) SetThumb(t Type, file string) {
	switch t {
	case TypeBackdrop:
		e.BackdropThumb = file
	case TypeLogo:
		e.LogoThumb = file
	case TypePoster:
		e.PosterThumb = file
	}
}

var (
	yearRe   = regexp.MustCompile(`\((19|20|21)\d{2}\)`)
	tmdbRe   = regexp.MustCompile(`\{tmdb-(\d+)\}`)
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
)

// NewEntry builds an entry from a directory name and full path, parsing
// the `Title (Year) {tmdb-ID}` naming convention where present.
func NewEntry(dirName, path string) Entry {
	e := Entry{
		Title:   dirName,
		Path:    path,
		CleanID: CleanID(dirName),
	}

	if m := yearRe.FindString(dirName); m != "" {
		if y, err := strconv.Atoi(m[1 : len(m)-1]); err == nil {
			e.Year = y
		}
	}
	if m := tmdbRe.FindStringSubmatch(dirName); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			e.TMDbID = id
		}
	}

	return e
}

// DisplayTitle strips year and TMDb id markers from the title.
func (e *Entry) DisplayTitle() string {
	s := yearRe.ReplaceAllString(e.Title, "")
	s = tmdbRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CleanID generates a URL- and anchor-safe identifier from a title.
func CleanID(title string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

// NormalizeTitle lowercases and strips everything but letters and digits,
// for fuzzy comparison.
func NormalizeTitle(title string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(title), "")
}

// SortKey returns the title lowered with a leading "The " removed, so
// "The Matrix" sorts under M.
func SortKey(title string) string {
	lower := strings.ToLower(title)
	if strings.HasPrefix(lower, "the ") {
		return lower[4:]
	}
	return lower
}
