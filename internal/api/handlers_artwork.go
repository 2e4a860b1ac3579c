package api

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sydlexius/mediarr/internal/artwork"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/tmdb"
)

func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	kind, ok := mediaKind(req.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	query := strings.TrimSpace(req.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	year := queryInt(req, "year", 0)

	results, err := r.search.Search(req.Context(), kind, query, year)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (r *Router) handleDetails(w http.ResponseWriter, req *http.Request) {
	kind, ok := mediaKind(req.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	tmdbID := queryInt(req, "tmdb_id", 0)
	if tmdbID <= 0 {
		writeError(w, http.StatusBadRequest, "tmdb_id is required")
		return
	}

	details, err := r.search.Details(req.Context(), kind, tmdbID)
	if err != nil {
		if errors.Is(err, tmdb.ErrNotFound) {
			writeError(w, http.StatusNotFound, "title not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleResolve matches a library directory name to a TMDb title using
// the embedded-id, remembered-mapping, and fuzzy tiers in that order.
func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request) {
	kind, ok := mediaKind(req.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	dir := strings.TrimSpace(req.URL.Query().Get("dir"))
	if dir == "" {
		writeError(w, http.StatusBadRequest, "dir is required")
		return
	}

	entry := media.NewEntry(filepath.Base(dir), dir)
	matched, err := r.matcher.Resolve(req.Context(), kind, &entry)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if matched == nil {
		writeError(w, http.StatusNotFound, "no confident match")
		return
	}
	writeJSON(w, http.StatusOK, matched)
}

func (r *Router) handleCandidates(w http.ResponseWriter, req *http.Request) {
	kind, ok := mediaKind(req.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	tmdbID := queryInt(req, "tmdb_id", 0)
	if tmdbID <= 0 {
		writeError(w, http.StatusBadRequest, "tmdb_id is required")
		return
	}
	t, ok := artworkType(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown artwork type")
		return
	}

	candidates, err := r.pipeline.Candidates(req.Context(), kind, tmdbID, t)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

type installRequest struct {
	Kind     string `json:"kind"`
	TMDbID   int    `json:"tmdb_id"`
	Dir      string `json:"dir"`
	Type     string `json:"type"`
	FilePath string `json:"file_path,omitempty"`
}

func (r *Router) handleInstall(w http.ResponseWriter, req *http.Request) {
	var body installRequest
	if !decodeBody(w, req, &body) {
		return
	}
	kind, ok := mediaKind(body.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	t, err := media.ParseType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown artwork type")
		return
	}
	if body.TMDbID <= 0 || body.Dir == "" {
		writeError(w, http.StatusBadRequest, "tmdb_id and dir are required")
		return
	}
	if !r.withinRoots(body.Dir) {
		writeError(w, http.StatusForbidden, "directory outside configured libraries")
		return
	}

	if body.FilePath != "" {
		err = r.pipeline.Install(req.Context(), kind, body.TMDbID, body.Dir, t, body.FilePath)
	} else {
		err = r.pipeline.Apply(req.Context(), kind, body.TMDbID, body.Dir, t)
	}
	if err != nil {
		if errors.Is(err, artwork.ErrUnavailable) {
			writeError(w, http.StatusNotFound, "no artwork available for this item")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"installed": true})
}

// handleArtworkFile serves an artwork or thumbnail file from a library
// directory. The path must resolve inside a configured root.
func (r *Router) handleArtworkFile(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	root, ok := r.containingRoot(path)
	if !ok {
		writeError(w, http.StatusForbidden, "path outside configured libraries")
		return
	}
	info, err := r.files.StatFile(req.Context(), root, path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	data, err := r.files.ReadFile(req.Context(), root, path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	// Artwork files change rarely; let browsers cache for a day.
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, req, filepath.Base(path), info.ModTime(), bytes.NewReader(data))
}

type unavailabilityRequest struct {
	Kind   string `json:"kind"`
	TMDbID int    `json:"tmdb_id"`
	Type   string `json:"type"`
}

func (r *Router) handleMarkUnavailable(w http.ResponseWriter, req *http.Request) {
	kind, tmdbID, t, ok := r.unavailabilityParams(w, req)
	if !ok {
		return
	}
	if err := r.mappings.MarkUnavailable(kind, tmdbID, t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unavailable": true})
}

func (r *Router) handleResetUnavailable(w http.ResponseWriter, req *http.Request) {
	kind, tmdbID, t, ok := r.unavailabilityParams(w, req)
	if !ok {
		return
	}
	if err := r.mappings.Reset(kind, tmdbID, t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unavailable": false})
}

func (r *Router) unavailabilityParams(w http.ResponseWriter, req *http.Request) (media.Kind, int, media.Type, bool) {
	var body unavailabilityRequest
	if !decodeBody(w, req, &body) {
		return "", 0, "", false
	}
	kind, ok := mediaKind(body.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or tv")
		return "", 0, "", false
	}
	t, err := media.ParseType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown artwork type")
		return "", 0, "", false
	}
	if body.TMDbID <= 0 {
		writeError(w, http.StatusBadRequest, "tmdb_id is required")
		return "", 0, "", false
	}
	return kind, body.TMDbID, t, true
}

// withinRoots reports whether path resolves inside one of the
// configured library roots.
func (r *Router) withinRoots(path string) bool {
	_, ok := r.containingRoot(path)
	return ok
}

// containingRoot resolves path and returns the configured library root
// that contains it.
func (r *Router) containingRoot(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	for _, sec := range r.coordinator.Sections() {
		for _, root := range sec.Roots {
			rootAbs, err := filepath.Abs(root)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(rootAbs, abs)
			if err != nil {
				continue
			}
			if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return root, true
			}
		}
	}
	return "", false
}
