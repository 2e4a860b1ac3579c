package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sydlexius/mediarr/internal/cache"
	"github.com/sydlexius/mediarr/internal/event"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/scanhistory"
)

// ErrNoSnapshot is returned when a section has no usable snapshot and
// none can be derived.
var ErrNoSnapshot = errors.New("no snapshot available")

// ErrUnknownSection is returned for scan keys not present in the
// configured library layout.
var ErrUnknownSection = errors.New("unknown section")

// Section couples a scan key with its library kind and root folders.
type Section struct {
	Key   string
	Kind  media.Kind
	Roots []string
}

// ThumbnailQueuer receives fresh snapshots for background thumbnail
// generation. Implemented by the thumbnail worker.
type ThumbnailQueuer interface {
	Enqueue(section string, snap *cache.Snapshot)
}

// Coordinator owns the read path over snapshots and the lifecycle of
// background scans. Status requests never block on filesystem walks:
// they answer from cache, derive across artwork types, or kick off a
// scan and report progress.
type Coordinator struct {
	engine   *Engine
	store    *cache.Store
	locks    *LockTable
	sections map[string]Section
	order    []string
	logger   *slog.Logger

	history *scanhistory.Service
	bus     *event.Bus
	thumbs  ThumbnailQueuer
	lookup  UnavailabilityLookup

	mu       sync.Mutex
	progress map[string]*Progress

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator over the given sections.
func NewCoordinator(engine *Engine, store *cache.Store, sections []Section, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		engine:   engine,
		store:    store,
		locks:    NewLockTable(),
		sections: make(map[string]Section, len(sections)),
		logger:   logger.With(slog.String("component", "coordinator")),
		progress: make(map[string]*Progress),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, sec := range sections {
		c.sections[sec.Key] = sec
		c.order = append(c.order, sec.Key)
	}
	return c
}

// SetHistory wires scan run recording.
func (c *Coordinator) SetHistory(h *scanhistory.Service) { c.history = h }

// SetBus wires event publication.
func (c *Coordinator) SetBus(b *event.Bus) { c.bus = b }

// SetThumbnails wires the background thumbnail queue.
func (c *Coordinator) SetThumbnails(q ThumbnailQueuer) { c.thumbs = q }

// SetUnavailabilityLookup wires the artwork unavailability capability
// used by coverage stats.
func (c *Coordinator) SetUnavailabilityLookup(fn UnavailabilityLookup) { c.lookup = fn }

// Section returns the configuration for a scan key.
func (c *Coordinator) Section(key string) (Section, bool) {
	sec, ok := c.sections[key]
	return sec, ok
}

// Sections returns all configured sections in declaration order.
func (c *Coordinator) Sections() []Section {
	out := make([]Section, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.sections[key])
	}
	return out
}

// GetStatus answers a status request for one section and artwork type
// without blocking. Resolution order: a covering snapshot of the
// requested type, then derivation from a sibling type's snapshot, then
// a background scan with progress reporting.
func (c *Coordinator) GetStatus(ctx context.Context, key string, t media.Type) (Status, error) {
	sec, ok := c.sections[key]
	if !ok {
		return Status{}, fmt.Errorf("%w: %q", ErrUnknownSection, key)
	}

	snap, err := c.store.LoadSnapshot(key, t)
	if err != nil {
		return Status{}, err
	}
	if snap != nil && snap.CoversRoots(sec.Roots) {
		return Status{Snapshot: snap}, nil
	}

	if derived := c.derive(key, sec, t); derived != nil {
		return Status{Snapshot: derived}, nil
	}

	c.StartScan(key, t)
	return Status{InProgress: true, Progress: c.GetProgress(key)}, nil
}

// derive tries each sibling type's snapshot as a derivation source.
func (c *Coordinator) derive(key string, sec Section, t media.Type) *cache.Snapshot {
	for _, other := range media.Types {
		if other == t {
			continue
		}
		src, err := c.store.LoadSnapshot(key, other)
		if err != nil || src == nil {
			continue
		}
		if !src.SupportsDerivation() || !src.CoversRoots(sec.Roots) {
			continue
		}
		derived, err := c.engine.Derive(src, t)
		if err != nil {
			c.logger.Warn("derivation failed, falling back to scan",
				"key", key, "from", string(other), "error", err)
			continue
		}
		// Derivation can surface entries whose thumbnails were never
		// generated; give the worker another pass over them.
		if c.thumbs != nil {
			c.thumbs.Enqueue(key, derived)
		}
		return derived
	}
	return nil
}

// StartScan launches a background scan for the section unless one is
// already running. Returns whether a new scan was started.
func (c *Coordinator) StartScan(key string, t media.Type) bool {
	sec, ok := c.sections[key]
	if !ok {
		return false
	}
	if !c.locks.TryAcquire(key) {
		return false
	}

	c.setProgress(key, &Progress{ScanKey: key})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.locks.Release(key)
		c.runScan(key, sec, t)
	}()
	return true
}

// Refresh re-examines a section. A full refresh invalidates every
// snapshot and checkpoint and rescans from scratch. An incremental one
// scans only directories that appeared since the last snapshot and
// drops the vanished ones; without a usable prior snapshot it degrades
// to a full scan. Returns whether work was started.
func (c *Coordinator) Refresh(key string, t media.Type, full bool) (bool, error) {
	sec, ok := c.sections[key]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSection, key)
	}

	if full {
		if !c.locks.TryAcquire(key) {
			return false, nil
		}
		if err := c.store.InvalidateSection(key); err != nil {
			c.locks.Release(key)
			return false, err
		}
		if err := c.store.ClearCheckpoint(key); err != nil {
			c.locks.Release(key)
			return false, err
		}
		c.setProgress(key, &Progress{ScanKey: key})
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.locks.Release(key)
			c.runScan(key, sec, t)
		}()
		return true, nil
	}

	prev, err := c.store.LoadSnapshot(key, t)
	if err != nil {
		return false, err
	}
	if prev == nil || !prev.CoversRoots(sec.Roots) {
		return c.StartScan(key, t), nil
	}

	if !c.locks.TryAcquire(key) {
		return false, nil
	}
	c.setProgress(key, &Progress{ScanKey: key})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.locks.Release(key)
		c.runRefresh(key, prev, t)
	}()
	return true, nil
}

// GetProgress returns a copy of the section's progress, or nil when no
// scan has run since startup.
func (c *Coordinator) GetProgress(key string) *Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.progress[key]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Scanning reports whether a scan is currently running for the key.
func (c *Coordinator) Scanning(key string) bool {
	return c.locks.Held(key)
}

// Stats computes artwork coverage for a section and type from the
// current snapshot, deriving one if needed. ErrNoSnapshot when the
// section has never been scanned.
func (c *Coordinator) Stats(key string, t media.Type) (Stats, error) {
	sec, ok := c.sections[key]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownSection, key)
	}

	snap, err := c.store.LoadSnapshot(key, t)
	if err != nil {
		return Stats{}, err
	}
	if snap == nil || !snap.CoversRoots(sec.Roots) {
		if snap = c.derive(key, sec, t); snap == nil {
			return Stats{}, ErrNoSnapshot
		}
	}
	return ComputeStats(snap, sec.Kind, c.lookup), nil
}

// Close stops background scans and waits for them to checkpoint.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) runScan(key string, sec Section, t media.Type) {
	started := time.Now().UTC()
	res, err := c.engine.Scan(c.baseCtx, key, sec.Roots, t, c.reporter(key))
	c.finishRun(key, scanhistory.ModeFull, started, res, err)
}

func (c *Coordinator) runRefresh(key string, prev *cache.Snapshot, t media.Type) {
	started := time.Now().UTC()
	res, err := c.engine.Refresh(c.baseCtx, prev, t, c.reporter(key))
	if err == nil {
		// Only this type's snapshot was rewritten; sibling snapshots no
		// longer reflect the directory set and must be re-derived.
		if ierr := c.store.InvalidateSiblings(key, t); ierr != nil {
			c.logger.Warn("invalidating sibling snapshots failed", "key", key, "error", ierr)
		}
	}
	c.finishRun(key, scanhistory.ModeRefresh, started, res, err)
}

func (c *Coordinator) reporter(key string) func(done, total int) {
	return func(done, total int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if p, ok := c.progress[key]; ok {
			p.ProcessedCount = done
			p.TotalCount = total
		}
	}
}

func (c *Coordinator) finishRun(key, mode string, started time.Time, res *Result, err error) {
	c.mu.Lock()
	if p, ok := c.progress[key]; ok {
		p.Done = true
		if err != nil {
			p.Error = err.Error()
		}
	}
	c.mu.Unlock()

	completed := time.Now().UTC()
	run := scanhistory.Run{
		ScanKey:     key,
		Mode:        mode,
		Status:      scanhistory.StatusCompleted,
		StartedAt:   started,
		CompletedAt: &completed,
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-scan; the checkpoint carries the progress.
			c.logger.Info("scan interrupted, checkpoint retained", "key", key)
			return
		}
		c.logger.Error("scan failed", "key", key, "error", err)
		run.Status = scanhistory.StatusFailed
		run.Error = err.Error()
	} else {
		if res.Mode == "resume" {
			run.Mode = scanhistory.ModeResume
		}
		run.TotalDirectories = len(res.Snapshot.Entries)
		run.NewEntries = res.NewEntries
		run.RemovedEntries = res.RemovedEntries
		run.UnscannedEntries = res.Unscanned
	}

	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if herr := c.history.Record(ctx, run); herr != nil {
			c.logger.Warn("recording scan run failed", "key", key, "error", herr)
		}
		cancel()
	}

	if err != nil {
		return
	}

	if c.bus != nil {
		c.bus.Publish(event.Event{
			Type: event.ScanCompleted,
			Data: map[string]any{
				"scan_key":    key,
				"mode":        run.Mode,
				"directories": run.TotalDirectories,
				"new":         run.NewEntries,
				"removed":     run.RemovedEntries,
				"unscanned":   run.UnscannedEntries,
			},
		})
	}

	if c.thumbs != nil {
		c.thumbs.Enqueue(key, res.Snapshot)
	}
}

func (c *Coordinator) setProgress(key string, p *Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress[key] = p
}
