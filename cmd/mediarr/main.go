package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sydlexius/mediarr/internal/api"
	"github.com/sydlexius/mediarr/internal/artwork"
	"github.com/sydlexius/mediarr/internal/backup"
	"github.com/sydlexius/mediarr/internal/cache"
	"github.com/sydlexius/mediarr/internal/config"
	"github.com/sydlexius/mediarr/internal/database"
	"github.com/sydlexius/mediarr/internal/event"
	"github.com/sydlexius/mediarr/internal/logging"
	"github.com/sydlexius/mediarr/internal/maintenance"
	"github.com/sydlexius/mediarr/internal/mapping"
	"github.com/sydlexius/mediarr/internal/match"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/notify"
	"github.com/sydlexius/mediarr/internal/safefs"
	"github.com/sydlexius/mediarr/internal/scanhistory"
	"github.com/sydlexius/mediarr/internal/scanner"
	"github.com/sydlexius/mediarr/internal/throttle"
	"github.com/sydlexius/mediarr/internal/thumbnail"
	"github.com/sydlexius/mediarr/internal/tmdb"
	"github.com/sydlexius/mediarr/internal/version"
	"github.com/sydlexius/mediarr/internal/watcher"
)

const (
	// Items confirmed to have no artwork upstream are rechecked after
	// this long.
	unavailabilityRecheck = 30 * 24 * time.Hour

	historyRetention    = 90 * 24 * time.Hour
	maintenanceInterval = 24 * time.Hour
	backupInterval      = 24 * time.Hour
	backupRetention     = 7
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("MR_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close() //nolint:errcheck
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := database.Open(cfg.Data.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("database ready", slog.String("path", cfg.Data.DatabasePath))

	historyService := scanhistory.NewService(db)

	mappingsPath := filepath.Join(cfg.Data.Dir, "tmdb_directory_mapping.json")
	mappings, err := mapping.NewStore(mappingsPath, unavailabilityRecheck, logger)
	if err != nil {
		return fmt.Errorf("loading mapping store: %w", err)
	}

	// Mount access goes through the throttle controller so one flaky
	// share slows everything down instead of failing it.
	controller := throttle.NewController(throttle.Options{
		Floor:         cfg.Scanner.BackoffFloor,
		Ceiling:       cfg.Scanner.BackoffCeiling,
		Step:          cfg.Scanner.BackoffStep,
		SuccessStreak: cfg.Scanner.SuccessStreak,
	}, logger)
	accessor := safefs.NewAccessor(controller, cfg.Scanner.MaxRetries, logger)

	cacheStore := cache.NewStore(cfg.Data.Dir, logger)

	engine := scanner.NewEngine(accessor, cacheStore, scanner.Options{
		BatchSize:  cfg.Scanner.BatchSize,
		BatchPause: cfg.Scanner.BatchPause,
	}, logger)
	engine.SetIDLookup(directoryIDLookup(cfg, mappings))

	sections := buildSections(cfg)
	if len(sections) == 0 {
		return fmt.Errorf("no library folders configured")
	}

	coordinator := scanner.NewCoordinator(engine, cacheStore, sections, logger)
	defer coordinator.Close()
	coordinator.SetHistory(historyService)
	coordinator.SetUnavailabilityLookup(mappings.Unavailable)

	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()
	coordinator.SetBus(eventBus)

	thumbWorker := thumbnail.NewWorker(cfg.Scanner.ThumbnailDelay, logger)
	thumbWorker.SetBus(eventBus)
	thumbWorker.Start()
	defer thumbWorker.Stop()
	coordinator.SetThumbnails(thumbWorker)

	if cfg.TMDb.APIKey == "" {
		logger.Warn("no TMDb API key configured; search and artwork downloads will fail")
	}
	tmdbClient := tmdb.NewClient(cfg.TMDb.APIKey, logger)
	matcher := match.NewMatcher(tmdbClient, mappings, logger)
	pipeline := artwork.NewPipeline(tmdbClient, mappings, logger)
	pipeline.SetBus(eventBus)

	if cfg.Slack.WebhookURL != "" {
		notify.NewNotifier(cfg.Slack.WebhookURL, logger).Register(eventBus)
	}

	maintenanceService := maintenance.NewService(db, cfg.Data.DatabasePath, historyRetention, logger)
	backupService := backup.NewService(db, mappingsPath,
		filepath.Join(cfg.Data.Dir, "backups"), backupRetention, logger)

	logger.Info("starting mediarr",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Probe each root for inotify support; unsupported mounts fall
	// back to polling inside the watcher.
	probeCache := watcher.NewProbeCache()
	probeCache.ProbeAll(ctx, allRoots(sections), logger)

	refresh := func(section string) {
		if _, err := coordinator.Refresh(section, media.TypePoster, false); err != nil {
			logger.Error("watcher refresh failed", "section", section, "error", err)
		}
	}
	watcherService := watcher.NewService(refresh, sections, eventBus, probeCache, logger)
	go watcherService.Start(ctx)

	go maintenanceService.StartScheduler(ctx, maintenanceInterval)
	go backupService.StartScheduler(ctx, backupInterval)
	go refreshScheduler(ctx, coordinator, cfg.Scanner.RefreshInterval, logger)

	router := api.NewRouter(api.RouterDeps{
		Coordinator: coordinator,
		Mappings:    mappings,
		Matcher:     matcher,
		Search:      tmdbClient,
		Pipeline:    pipeline,
		History:     historyService,
		Maintenance: maintenanceService,
		Backups:     backupService,
		Files:       accessor,
		Logger:      logger,
		BasePath:    cfg.Server.BasePath,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(ctx),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func buildSections(cfg *config.Config) []scanner.Section {
	var sections []scanner.Section
	if len(cfg.Library.MovieFolders) > 0 {
		sections = append(sections, scanner.Section{
			Key:   "movie",
			Kind:  media.KindMovie,
			Roots: cfg.Library.MovieFolders,
		})
	}
	if len(cfg.Library.TVFolders) > 0 {
		sections = append(sections, scanner.Section{
			Key:   "tv",
			Kind:  media.KindTV,
			Roots: cfg.Library.TVFolders,
		})
	}
	return sections
}

func allRoots(sections []scanner.Section) []string {
	var roots []string
	for _, sec := range sections {
		roots = append(roots, sec.Roots...)
	}
	return roots
}

// directoryIDLookup resolves a directory path to a remembered TMDb id.
// The library kind is inferred from which configured root contains the
// path.
func directoryIDLookup(cfg *config.Config, mappings *mapping.Store) func(path string) int {
	return func(path string) int {
		kind := media.KindMovie
		for _, root := range cfg.Library.TVFolders {
			if strings.HasPrefix(path, strings.TrimRight(root, "/")+"/") {
				kind = media.KindTV
				break
			}
		}
		return mappings.DirectoryID(kind, filepath.Base(path))
	}
}

// refreshScheduler runs periodic incremental refreshes so removed or
// added directories are noticed even without filesystem events.
func refreshScheduler(ctx context.Context, c *scanner.Coordinator, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sec := range c.Sections() {
				if _, err := c.Refresh(sec.Key, media.TypePoster, false); err != nil {
					logger.Error("scheduled refresh failed", "section", sec.Key, "error", err)
				}
			}
		}
	}
}
