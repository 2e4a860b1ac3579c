package api

import (
	"errors"
	"net/http"

	"github.com/sydlexius/mediarr/internal/scanner"
)

type sectionInfo struct {
	Key   string   `json:"key"`
	Kind  string   `json:"kind"`
	Roots []string `json:"roots"`
}

func (r *Router) handleListSections(w http.ResponseWriter, req *http.Request) {
	sections := r.coordinator.Sections()
	out := make([]sectionInfo, 0, len(sections))
	for _, sec := range sections {
		out = append(out, sectionInfo{
			Key:   sec.Key,
			Kind:  string(sec.Kind),
			Roots: sec.Roots,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleSectionStatus(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	t, ok := artworkType(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown artwork type")
		return
	}

	status, err := r.coordinator.GetStatus(req.Context(), key, t)
	if err != nil {
		if errors.Is(err, scanner.ErrUnknownSection) {
			writeError(w, http.StatusNotFound, "unknown section")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleSectionProgress(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	if _, ok := r.coordinator.Section(key); !ok {
		writeError(w, http.StatusNotFound, "unknown section")
		return
	}

	progress := r.coordinator.GetProgress(key)
	if progress == nil {
		progress = &scanner.Progress{ScanKey: key, Done: true}
	}
	writeJSON(w, http.StatusOK, progress)
}

func (r *Router) handleSectionRefresh(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	t, ok := artworkType(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown artwork type")
		return
	}
	full := req.URL.Query().Get("full") == "true"

	started, err := r.coordinator.Refresh(key, t, full)
	if err != nil {
		if errors.Is(err, scanner.ErrUnknownSection) {
			writeError(w, http.StatusNotFound, "unknown section")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !started {
		writeError(w, http.StatusConflict, "scan already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "full": full})
}

func (r *Router) handleSectionStats(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	t, ok := artworkType(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown artwork type")
		return
	}

	stats, err := r.coordinator.Stats(key, t)
	if err != nil {
		switch {
		case errors.Is(err, scanner.ErrUnknownSection):
			writeError(w, http.StatusNotFound, "unknown section")
		case errors.Is(err, scanner.ErrNoSnapshot):
			writeError(w, http.StatusNotFound, "no snapshot available; trigger a scan first")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	limit := queryInt(req, "limit", 50)
	runs, err := r.history.List(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
