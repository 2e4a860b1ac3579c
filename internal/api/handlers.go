package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/version"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// artworkType reads the type query parameter, defaulting to poster.
func artworkType(req *http.Request) (media.Type, bool) {
	raw := req.URL.Query().Get("type")
	if raw == "" {
		return media.TypePoster, true
	}
	t, err := media.ParseType(raw)
	if err != nil {
		return "", false
	}
	return t, true
}

// mediaKind reads the kind query parameter ("movie" or "tv").
func mediaKind(raw string) (media.Kind, bool) {
	switch raw {
	case "movie":
		return media.KindMovie, true
	case "tv":
		return media.KindTV, true
	}
	return "", false
}

func queryInt(req *http.Request, name string, fallback int) int {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
