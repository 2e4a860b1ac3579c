// Package scanner walks media roots under adverse I/O conditions and
// maintains per-directory artwork presence snapshots. One scan observes
// all artwork types at once; sibling types are derived without touching
// the filesystem again.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sydlexius/mediarr/internal/cache"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/safefs"
)

// ErrDerivationUnsupported is returned when a snapshot predates joint
// presence capture; the caller falls back to a full scan.
var ErrDerivationUnsupported = errors.New("snapshot does not support derivation")

// Options holds scan pacing knobs. Now and Sleep are injectable for tests.
type Options struct {
	BatchSize  int
	BatchPause time.Duration
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BatchPause <= 0 {
		o.BatchPause = 2 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
}

// Result is the outcome of one engine run.
type Result struct {
	Snapshot       *cache.Snapshot
	Mode           string // "full", "resume", or "refresh"
	NewEntries     int
	RemovedEntries int
	Unscanned      int
}

// Engine performs batched, checkpointed directory scans.
type Engine struct {
	fs       safefs.Lister
	store    *cache.Store
	opts     Options
	idLookup func(path string) int
	logger   *slog.Logger
}

// NewEngine creates a scan engine.
func NewEngine(fs safefs.Lister, store *cache.Store, opts Options, logger *slog.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		fs:     fs,
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// SetIDLookup installs an optional directory-to-TMDb-id resolver used to
// enrich entries whose name carries no embedded id.
func (e *Engine) SetIDLookup(fn func(path string) int) {
	e.idLookup = fn
}

// Scan walks roots in batches, checkpointing after every committed batch.
// A checkpoint left by an interrupted scan over the same roots is resumed:
// directories it already recorded are not re-listed. report may be nil.
func (e *Engine) Scan(ctx context.Context, section string, roots []string, active media.Type, report func(done, total int)) (*Result, error) {
	key := section
	mode := "full"

	var cp *cache.Checkpoint
	loaded, err := e.store.LoadCheckpoint(key)
	switch {
	case errors.Is(err, cache.ErrCheckpointCorrupt):
		e.logger.Warn("discarding corrupt checkpoint, restarting scan", "key", key, "error", err)
		if err := e.store.ClearCheckpoint(key); err != nil {
			return nil, err
		}
	case err != nil:
		// Checkpoint store failures are fatal to the scan run.
		return nil, err
	case loaded != nil && sameRoots(loaded.Roots, roots):
		cp = loaded
		mode = "resume"
		e.logger.Info("resuming interrupted scan",
			"key", key,
			"processed", len(cp.Processed),
			"pending", len(cp.Pending))
	case loaded != nil:
		e.logger.Info("checkpoint roots changed, restarting scan", "key", key)
		if err := e.store.ClearCheckpoint(key); err != nil {
			return nil, err
		}
	}

	if cp == nil {
		pending, err := e.enumerate(ctx, roots)
		if err != nil {
			return nil, err
		}
		cp = &cache.Checkpoint{
			ScanKey:   key,
			Roots:     roots,
			Pending:   pending,
			StartedAt: e.opts.Now().UTC(),
		}
		if err := e.store.SaveCheckpoint(cp); err != nil {
			return nil, err
		}
	}

	total := len(cp.Pending) + len(cp.Processed)
	progress(report, len(cp.Processed), total)

	unscanned := 0
	for len(cp.Pending) > 0 {
		n := min(e.opts.BatchSize, len(cp.Pending))
		batch := cp.Pending[:n]

		var batchEntries []media.Entry
		for _, dirPath := range batch {
			entry, ok, err := e.processDirectory(ctx, rootOf(dirPath, roots), dirPath)
			if err != nil {
				// Canceled mid-batch: the uncommitted batch is discarded,
				// so resumption re-lists only these directories.
				return nil, err
			}
			if !ok {
				continue
			}
			if entry.Unscanned {
				unscanned++
			}
			batchEntries = append(batchEntries, entry)
		}

		cp.Processed = append(cp.Processed, batchEntries...)
		cp.Pending = cp.Pending[n:]
		cp.Cursor += n
		if err := e.store.SaveCheckpoint(cp); err != nil {
			return nil, fmt.Errorf("committing batch: %w", err)
		}
		progress(report, len(cp.Processed), total)

		if len(cp.Pending) > 0 {
			if err := e.opts.Sleep(ctx, e.opts.BatchPause); err != nil {
				return nil, err
			}
		}
	}

	snap := &cache.Snapshot{
		ActiveType:  active,
		Section:     section,
		Roots:       roots,
		Entries:     sortEntries(cp.Processed),
		CompletedAt: e.opts.Now().UTC(),
	}
	if err := e.store.SaveSnapshot(snap); err != nil {
		return nil, err
	}
	if err := e.store.ClearCheckpoint(key); err != nil {
		return nil, err
	}

	e.logger.Info("scan complete",
		"key", key,
		"mode", mode,
		"directories", len(snap.Entries),
		"unscanned", unscanned)

	return &Result{
		Snapshot:   snap,
		Mode:       mode,
		NewEntries: len(snap.Entries),
		Unscanned:  unscanned,
	}, nil
}

// Refresh compares the current root listings against prev, scans only
// directories that appeared, and drops entries whose directories are
// gone. Surviving entries are carried over without re-listing.
func (e *Engine) Refresh(ctx context.Context, prev *cache.Snapshot, active media.Type, report func(done, total int)) (*Result, error) {
	current, err := e.enumerate(ctx, prev.Roots)
	if err != nil {
		return nil, err
	}

	currentSet := make(map[string]bool, len(current))
	for _, p := range current {
		currentSet[p] = true
	}

	prevSet := make(map[string]bool, len(prev.Entries))
	var kept []media.Entry
	for _, entry := range prev.Entries {
		prevSet[entry.Path] = true
		if currentSet[entry.Path] {
			kept = append(kept, entry)
		}
	}
	removed := len(prev.Entries) - len(kept)

	var added []string
	for _, p := range current {
		if !prevSet[p] {
			added = append(added, p)
		}
	}

	progress(report, 0, len(added))

	unscanned := 0
	entries := kept
	for i := 0; i < len(added); i += e.opts.BatchSize {
		n := min(e.opts.BatchSize, len(added)-i)
		for _, dirPath := range added[i : i+n] {
			entry, ok, err := e.processDirectory(ctx, rootOf(dirPath, prev.Roots), dirPath)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if entry.Unscanned {
				unscanned++
			}
			entries = append(entries, entry)
		}
		progress(report, i+n, len(added))
		if i+n < len(added) {
			if err := e.opts.Sleep(ctx, e.opts.BatchPause); err != nil {
				return nil, err
			}
		}
	}

	snap := &cache.Snapshot{
		ActiveType:  active,
		Section:     prev.Section,
		Roots:       prev.Roots,
		Entries:     sortEntries(entries),
		CompletedAt: e.opts.Now().UTC(),
	}
	if err := e.store.SaveSnapshot(snap); err != nil {
		return nil, err
	}
	// A checkpoint left by an interrupted full scan describes a
	// directory set this refresh has superseded; resuming it later
	// would resurrect entries that are gone.
	if err := e.store.ClearCheckpoint(prev.Section); err != nil {
		return nil, err
	}

	e.logger.Info("incremental refresh complete",
		"key", prev.Section,
		"added", len(added),
		"removed", removed,
		"directories", len(snap.Entries))

	return &Result{
		Snapshot:       snap,
		Mode:           "refresh",
		NewEntries:     len(added),
		RemovedEntries: removed,
		Unscanned:      unscanned,
	}, nil
}

// Derive produces and persists a snapshot for target from source without
// filesystem access. The completion timestamp is carried over from the
// source, since no new observation happened.
func (e *Engine) Derive(source *cache.Snapshot, target media.Type) (*cache.Snapshot, error) {
	if !source.SupportsDerivation() {
		return nil, ErrDerivationUnsupported
	}

	entries := make([]media.Entry, len(source.Entries))
	copy(entries, source.Entries)

	snap := &cache.Snapshot{
		FormatVersion: source.FormatVersion,
		ActiveType:    target,
		Section:       source.Section,
		Roots:         source.Roots,
		Entries:       entries,
		CompletedAt:   source.CompletedAt,
		Partial:       source.Partial,
	}
	if err := e.store.SaveSnapshot(snap); err != nil {
		return nil, err
	}

	e.logger.Info("snapshot derived",
		"key", source.Section,
		"from", string(source.ActiveType),
		"to", string(target))
	return snap, nil
}

// enumerate lists the media directories under each root and returns the
// combined path set in lexicographic order. A root that cannot be listed
// contributes nothing; the failure is logged, not fatal.
func (e *Engine) enumerate(ctx context.Context, roots []string) ([]string, error) {
	var paths []string
	for _, root := range roots {
		children, err := e.fs.ListDirectory(ctx, root, root)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("cannot list media root, skipping", "root", root, "error", err)
			continue
		}
		for _, c := range children {
			if c.IsDir() {
				paths = append(paths, filepath.Join(root, c.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// processDirectory lists one media directory and records which canonical
// artwork files and thumbnails it contains. Exhausted transient retries
// mark the entry unscanned; a permanently missing directory reports
// ok=false and is dropped from the snapshot.
func (e *Engine) processDirectory(ctx context.Context, root, dirPath string) (media.Entry, bool, error) {
	entry := media.NewEntry(filepath.Base(dirPath), dirPath)
	if e.idLookup != nil && entry.TMDbID == 0 {
		if id := e.idLookup(dirPath); id != 0 {
			entry.TMDbID = id
		}
	}

	children, err := e.fs.ListDirectory(ctx, root, dirPath)
	if err != nil {
		if ctx.Err() != nil {
			return entry, false, ctx.Err()
		}
		if safefs.IsPermanent(err) {
			e.logger.Debug("directory vanished during scan", "path", dirPath)
			return entry, false, nil
		}
		e.logger.Warn("directory unscannable after retries", "path", dirPath, "error", err)
		entry.Unscanned = true
		return entry, true, nil
	}

	files := make(map[string]string, len(children))
	for _, c := range children {
		if !c.IsDir() {
			files[strings.ToLower(c.Name())] = c.Name()
		}
	}

	for _, t := range media.Types {
		for _, name := range t.FileNames() {
			if actual, ok := files[name]; ok {
				entry.SetHas(t, actual)
				break
			}
		}
		for _, ext := range t.Extensions() {
			if actual, ok := files[t.ThumbName(ext)]; ok {
				entry.SetThumb(t, actual)
				break
			}
		}
	}

	return entry, true, nil
}

// sortEntries orders entries by display title with a leading "The"
// ignored, ties broken by path.
func sortEntries(entries []media.Entry) []media.Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := media.SortKey(entries[i].Title), media.SortKey(entries[j].Title)
		if a != b {
			return a < b
		}
		return entries[i].Path < entries[j].Path
	})
	return entries
}

func sameRoots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func rootOf(path string, roots []string) string {
	for _, root := range roots {
		if strings.HasPrefix(path, strings.TrimRight(root, "/")+"/") {
			return root
		}
	}
	return path
}

func progress(report func(done, total int), done, total int) {
	if report != nil {
		report(done, total)
	}
}
