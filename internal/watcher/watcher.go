package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/mediarr/internal/event"
	"github.com/sydlexius/mediarr/internal/safefs"
	"github.com/sydlexius/mediarr/internal/scanner"
)

// Service watches section roots for media directory creation and
// removal. Changes are debounced into one incremental refresh per
// section. Roots where fsnotify delivers nothing fall back to polling.
type Service struct {
	refresh      func(section string)
	sections     []scanner.Section
	bus          *event.Bus
	probes       *ProbeCache
	debounce     time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu          sync.Mutex
	rootSection map[string]string
	watching    map[string]bool
	snapshots   map[string]map[string]struct{}
	dirty       map[string]bool
}

// NewService creates a watcher. refresh is called once per dirty
// section after the debounce window closes.
func NewService(refresh func(section string), sections []scanner.Section, bus *event.Bus, probes *ProbeCache, logger *slog.Logger) *Service {
	s := &Service{
		refresh:      refresh,
		sections:     sections,
		bus:          bus,
		probes:       probes,
		debounce:     time.Second,
		pollInterval: time.Minute,
		logger:       logger.With(slog.String("component", "watcher")),
		ready:        make(chan struct{}),
		rootSection:  make(map[string]string),
		watching:     make(map[string]bool),
		snapshots:    make(map[string]map[string]struct{}),
		dirty:        make(map[string]bool),
	}
	for _, sec := range sections {
		for _, root := range sec.Roots {
			s.rootSection[filepath.Clean(root)] = sec.Key
		}
	}
	return s
}

// SetDebounce overrides the debounce window, for tests.
func (s *Service) SetDebounce(d time.Duration) { s.debounce = d }

// SetPollInterval overrides the poll period, for tests.
func (s *Service) SetPollInterval(d time.Duration) { s.pollInterval = d }

// Ready returns a channel closed once the baseline directory snapshots
// are seeded. Changes made to a root before then are absorbed into the
// baseline rather than reported.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Start blocks until ctx is canceled, dispatching filesystem events and
// poll diffs into debounced refreshes.
func (s *Service) Start(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, polling every root", "error", err)
		w = nil
	} else {
		defer w.Close() //nolint:errcheck
	}
	s.setupRoots(w)
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("filesystem watcher starting")

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	if w != nil {
		eventCh = w.Events
		errCh = w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("filesystem watcher stopping")
			return

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if s.handleFSEvent(ev) {
				resetTimer(debounceTimer, s.debounce)
			}

		case err, ok := <-errCh:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-debounceTimer.C:
			s.flushDirty()

		case <-pollTicker.C:
			if s.pollRoots() {
				resetTimer(debounceTimer, s.debounce)
			}
		}
	}
}

// setupRoots watches probing-supported roots via fsnotify and seeds
// poll snapshots for the rest. Unprobed roots are treated as
// unsupported, so nothing depends on probe ordering.
func (s *Service) setupRoots(w *fsnotify.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for root := range s.rootSection {
		supported := false
		if w != nil && s.probes != nil {
			if ok, probed := s.probes.Get(root); probed {
				supported = ok
			}
		}

		if supported {
			if err := w.Add(root); err != nil {
				s.logger.Error("watching root failed, falling back to polling", "path", root, "error", err)
			} else {
				s.watching[root] = true
				s.logger.Info("watching root", "path", root)
			}
		}

		// Every root keeps a snapshot: watched roots need it to verify
		// removals, polled roots need it for diffing.
		if snap := readDirSnapshot(root); snap != nil {
			s.snapshots[root] = snap
		}
		if !s.watching[root] {
			s.logger.Info("polling root", "path", root, "interval", s.pollInterval)
		}
	}
}

// handleFSEvent reacts to a create, remove, or rename of a direct child
// of a watched root. Returns whether a refresh should be scheduled.
func (s *Service) handleFSEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}

	root := filepath.Dir(ev.Name)
	name := filepath.Base(ev.Name)
	if safefs.IsSpurious(name) {
		return false
	}

	s.mu.Lock()
	section, watched := s.rootSection[root]
	if !watched || !s.watching[root] {
		s.mu.Unlock()
		return false
	}

	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			s.mu.Unlock()
			return false
		}
		if s.snapshots[root] == nil {
			s.snapshots[root] = make(map[string]struct{})
		}
		s.snapshots[root][name] = struct{}{}
		s.dirty[section] = true
		s.mu.Unlock()

		s.logger.Info("media directory created", "path", ev.Name, "section", section)
		s.publish(event.DirCreated, ev.Name, name, section)
		return true
	}

	// Remove or rename: only meaningful if we knew the directory.
	_, wasDir := s.snapshots[root][name]
	if wasDir {
		delete(s.snapshots[root], name)
		s.dirty[section] = true
	}
	s.mu.Unlock()

	if !wasDir {
		return false
	}

	s.logger.Warn("media directory removed", "path", ev.Name, "section", section)
	s.publish(event.DirRemoved, ev.Name, name, section)
	return true
}

// pollRoots diffs unwatched roots against their snapshots. Returns
// whether any section became dirty.
func (s *Service) pollRoots() bool {
	s.mu.Lock()
	polled := make(map[string]string)
	for root, section := range s.rootSection {
		if !s.watching[root] {
			polled[root] = section
		}
	}
	s.mu.Unlock()

	changed := false
	for root, section := range polled {
		current := readDirSnapshot(root)
		if current == nil {
			continue
		}

		s.mu.Lock()
		prev := s.snapshots[root]
		s.snapshots[root] = current
		s.mu.Unlock()

		for name := range current {
			if _, ok := prev[name]; !ok {
				s.logger.Info("poll: media directory created",
					"path", filepath.Join(root, name), "section", section)
				s.publish(event.DirCreated, filepath.Join(root, name), name, section)
				s.markDirty(section)
				changed = true
			}
		}
		for name := range prev {
			if _, ok := current[name]; !ok {
				s.logger.Warn("poll: media directory removed",
					"path", filepath.Join(root, name), "section", section)
				s.publish(event.DirRemoved, filepath.Join(root, name), name, section)
				s.markDirty(section)
				changed = true
			}
		}
	}
	return changed
}

// flushDirty kicks one refresh per dirty section.
func (s *Service) flushDirty() {
	s.mu.Lock()
	sections := make([]string, 0, len(s.dirty))
	for sec := range s.dirty {
		sections = append(sections, sec)
	}
	s.dirty = make(map[string]bool)
	s.mu.Unlock()

	for _, sec := range sections {
		s.logger.Info("debounce elapsed, scheduling refresh", "section", sec)
		if s.bus != nil {
			s.bus.Publish(event.Event{
				Type: event.RefreshScheduled,
				Data: map[string]any{"section": sec, "reason": "filesystem change"},
			})
		}
		s.refresh(sec)
	}
}

func (s *Service) markDirty(section string) {
	s.mu.Lock()
	s.dirty[section] = true
	s.mu.Unlock()
}

func (s *Service) publish(t event.Type, path, name, section string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: t,
		Data: map[string]any{"path": path, "name": name, "section": section},
	})
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// readDirSnapshot returns the set of non-spurious subdirectory names,
// or nil when the root cannot be read.
func readDirSnapshot(path string) map[string]struct{} {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}
	snap := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() && !safefs.IsSpurious(e.Name()) {
			snap[e.Name()] = struct{}{}
		}
	}
	return snap
}
