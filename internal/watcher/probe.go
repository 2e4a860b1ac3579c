// Package watcher notices media directories appearing or vanishing
// under the configured roots and schedules incremental refreshes in
// response. Network mounts often swallow inotify events, so each root
// is probed at startup and falls back to periodic polling when events
// do not arrive.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ProbeCache caches fsnotify support per root path.
type ProbeCache struct {
	mu      sync.RWMutex
	results map[string]bool
}

// NewProbeCache creates an empty probe cache.
func NewProbeCache() *ProbeCache {
	return &ProbeCache{results: make(map[string]bool)}
}

// Get returns whether fsnotify works for the path; ok is false when the
// path has not been probed.
func (pc *ProbeCache) Get(path string) (supported bool, ok bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	supported, ok = pc.results[path]
	return
}

// Set stores a probe result.
func (pc *ProbeCache) Set(path string, supported bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.results[path] = supported
}

// ProbeFSNotify tests whether fsnotify actually delivers events for a
// path by creating a marker directory inside it and waiting for the
// Create event. SMB and some NFS mounts accept the watch but never
// deliver anything, which is exactly what this catches.
func ProbeFSNotify(path string, timeout time.Duration) bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(path); err != nil {
		return false
	}

	probeName := fmt.Sprintf(".mediarr_probe_%d", rand.Int63()) //nolint:gosec // G404: not security-sensitive
	probeDir := filepath.Join(path, probeName)

	if err := os.Mkdir(probeDir, 0o750); err != nil {
		return false
	}
	defer os.Remove(probeDir) //nolint:errcheck

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == probeName {
				return true
			}
		case <-w.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}

// ProbeAll probes every root and populates the cache. Called once at
// startup before the watcher loop starts.
func (pc *ProbeCache) ProbeAll(ctx context.Context, roots []string, logger *slog.Logger) {
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			pc.Set(root, false)
			logger.Warn("root not accessible for probe", "path", root, "error", err)
			continue
		}

		supported := ProbeFSNotify(root, 2*time.Second)
		pc.Set(root, supported)
		logger.Info("fsnotify probe result", "path", root, "supported", supported)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
