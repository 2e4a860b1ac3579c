package thumbnail

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sydlexius/mediarr/internal/cache"
	"github.com/sydlexius/mediarr/internal/event"
	"github.com/sydlexius/mediarr/internal/media"
)

// job is one snapshot's worth of thumbnail work.
type job struct {
	section string
	snap    *cache.Snapshot
}

// Worker generates missing thumbnails in the background, pacing itself
// so thumbnail I/O never competes with an active scan. Progress is
// per-item: a failed image is logged and skipped, never fatal.
type Worker struct {
	delay  time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	bus    *event.Bus
	logger *slog.Logger

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a thumbnail worker. delay spaces consecutive
// generations; zero or negative selects the default of 500ms.
func NewWorker(delay time.Duration, logger *slog.Logger) *Worker {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		delay: delay,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
		logger: logger.With(slog.String("component", "thumbnails")),
		jobs:   make(chan job, 8),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetBus wires completion event publication.
func (w *Worker) SetBus(b *event.Bus) { w.bus = b }

// Enqueue submits a snapshot for thumbnail generation without blocking.
// A full queue drops the job; the next scan re-submits the same work.
func (w *Worker) Enqueue(section string, snap *cache.Snapshot) {
	select {
	case w.jobs <- job{section: section, snap: snap}:
	default:
		w.logger.Warn("thumbnail queue full, dropping job", "section", section)
	}
}

// Start launches the worker loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				return
			case j := <-w.jobs:
				w.process(j)
			}
		}
	}()
}

// Stop cancels in-flight work and waits for the loop to exit.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) process(j job) {
	var generated, failed int
	for i := range j.snap.Entries {
		entry := &j.snap.Entries[i]
		if entry.Unscanned {
			continue
		}
		for _, t := range media.Types {
			if w.ctx.Err() != nil {
				return
			}
			file := entry.ArtworkFile(t)
			if file == "" || entry.ThumbFile(t) != "" {
				continue
			}

			thumbName := t.ThumbName(thumbExt(t, file))
			dst := filepath.Join(entry.Path, thumbName)
			if _, err := os.Stat(dst); err == nil {
				entry.SetThumb(t, thumbName)
				continue
			}

			if err := GenerateFile(t, filepath.Join(entry.Path, file), dst); err != nil {
				w.logger.Warn("thumbnail generation failed",
					"path", entry.Path, "type", string(t), "error", err)
				failed++
			} else {
				entry.SetThumb(t, thumbName)
				generated++
			}

			if err := w.sleep(w.ctx, w.delay); err != nil {
				return
			}
		}
	}

	if generated == 0 && failed == 0 {
		return
	}

	w.logger.Info("thumbnail pass complete",
		"section", j.section, "generated", generated, "failed", failed)

	if w.bus != nil {
		w.bus.Publish(event.Event{
			Type: event.ThumbnailsCompleted,
			Data: map[string]any{
				"section":   j.section,
				"generated": generated,
				"failed":    failed,
			},
		})
	}
}

// thumbExt picks the thumbnail extension: logos keep PNG for
// transparency, everything else follows the source file.
func thumbExt(t media.Type, srcFile string) string {
	if t == media.TypeLogo {
		return "png"
	}
	ext := filepath.Ext(srcFile)
	if len(ext) > 1 {
		return ext[1:]
	}
	return "jpg"
}
