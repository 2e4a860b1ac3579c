// Package api exposes the HTTP surface: scan status and progress,
// refreshes, coverage stats, artwork search and install, and
// maintenance operations.
package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/sydlexius/mediarr/internal/api/middleware"
	"github.com/sydlexius/mediarr/internal/artwork"
	"github.com/sydlexius/mediarr/internal/backup"
	"github.com/sydlexius/mediarr/internal/maintenance"
	"github.com/sydlexius/mediarr/internal/mapping"
	"github.com/sydlexius/mediarr/internal/match"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/scanhistory"
	"github.com/sydlexius/mediarr/internal/scanner"
	"github.com/sydlexius/mediarr/internal/tmdb"
)

// TitleSource is the metadata lookup surface the API needs.
type TitleSource interface {
	match.Searcher
	Details(ctx context.Context, kind media.Kind, tmdbID int) (*tmdb.SearchResult, error)
}

// FileReader stats and reads library files through the retrying
// accessor, so a momentarily blocked network mount retries instead of
// failing the request.
type FileReader interface {
	StatFile(ctx context.Context, root, path string) (fs.FileInfo, error)
	ReadFile(ctx context.Context, root, path string) ([]byte, error)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Coordinator *scanner.Coordinator
	Mappings    *mapping.Store
	Matcher     *match.Matcher
	Search      TitleSource
	Pipeline    *artwork.Pipeline
	History     *scanhistory.Service
	Maintenance *maintenance.Service
	Backups     *backup.Service
	Files       FileReader
	Logger      *slog.Logger
	BasePath    string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	coordinator *scanner.Coordinator
	mappings    *mapping.Store
	matcher     *match.Matcher
	search      TitleSource
	pipeline    *artwork.Pipeline
	history     *scanhistory.Service
	maintenance *maintenance.Service
	backups     *backup.Service
	files       FileReader
	logger      *slog.Logger
	basePath    string
}

// NewRouter creates a Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		coordinator: deps.Coordinator,
		mappings:    deps.Mappings,
		matcher:     deps.Matcher,
		search:      deps.Search,
		pipeline:    deps.Pipeline,
		history:     deps.History,
		maintenance: deps.Maintenance,
		backups:     deps.Backups,
		files:       deps.Files,
		logger:      deps.Logger,
		basePath:    deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware
// applied.
func (r *Router) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	// Refreshes walk network mounts; keep clients from hammering them.
	refreshLimit := middleware.NewIPRateLimiter(ctx, 10*time.Second, 3).Middleware

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	mux.HandleFunc("GET "+bp+"/api/v1/sections", r.handleListSections)
	mux.HandleFunc("GET "+bp+"/api/v1/sections/{key}/status", r.handleSectionStatus)
	mux.HandleFunc("GET "+bp+"/api/v1/sections/{key}/progress", r.handleSectionProgress)
	mux.HandleFunc("GET "+bp+"/api/v1/sections/{key}/stats", r.handleSectionStats)
	mux.Handle("POST "+bp+"/api/v1/sections/{key}/refresh",
		refreshLimit(http.HandlerFunc(r.handleSectionRefresh)))

	mux.HandleFunc("GET "+bp+"/api/v1/history", r.handleHistory)

	mux.HandleFunc("GET "+bp+"/api/v1/search", r.handleSearch)
	mux.HandleFunc("GET "+bp+"/api/v1/match", r.handleResolve)
	mux.HandleFunc("GET "+bp+"/api/v1/details", r.handleDetails)
	mux.HandleFunc("GET "+bp+"/api/v1/artwork/candidates", r.handleCandidates)
	mux.HandleFunc("POST "+bp+"/api/v1/artwork/install", r.handleInstall)
	mux.HandleFunc("GET "+bp+"/api/v1/artwork/file", r.handleArtworkFile)

	mux.HandleFunc("POST "+bp+"/api/v1/unavailability/mark", r.handleMarkUnavailable)
	mux.HandleFunc("POST "+bp+"/api/v1/unavailability/reset", r.handleResetUnavailable)

	mux.HandleFunc("GET "+bp+"/api/v1/backups", r.handleListBackups)
	mux.HandleFunc("POST "+bp+"/api/v1/backups", r.handleCreateBackup)
	mux.HandleFunc("DELETE "+bp+"/api/v1/backups/{filename}", r.handleDeleteBackup)

	mux.HandleFunc("GET "+bp+"/api/v1/maintenance/status", r.handleMaintenanceStatus)
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/optimize", r.handleMaintenanceOptimize)
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/vacuum", r.handleMaintenanceVacuum)

	var handler http.Handler = mux
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Logging(r.logger)(handler)
	return handler
}
