// Package artwork applies provider images to library directories:
// picking a candidate, downloading it, replacing any existing variants
// atomically, and regenerating the thumbnail.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sydlexius/mediarr/internal/event"
	"github.com/sydlexius/mediarr/internal/filesystem"
	"github.com/sydlexius/mediarr/internal/mapping"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/thumbnail"
	"github.com/sydlexius/mediarr/internal/tmdb"
)

// ErrUnavailable is returned when the provider has no usable artwork of
// the requested type for a title.
var ErrUnavailable = errors.New("artwork unavailable")

// Provider is the TMDb surface the pipeline consumes.
type Provider interface {
	Images(ctx context.Context, kind media.Kind, tmdbID int) (tmdb.Images, error)
	Download(ctx context.Context, filePath string) ([]byte, error)
}

// Pipeline downloads and installs artwork files.
type Pipeline struct {
	provider Provider
	mappings *mapping.Store
	bus      *event.Bus
	logger   *slog.Logger
}

// NewPipeline creates an artwork pipeline. mappings and bus may be nil.
func NewPipeline(provider Provider, mappings *mapping.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		provider: provider,
		mappings: mappings,
		logger:   logger.With(slog.String("component", "artwork")),
	}
}

// SetBus wires event publication.
func (p *Pipeline) SetBus(b *event.Bus) { p.bus = b }

// Candidates lists the provider's usable artwork of one type for a
// title, in the provider's vote order. SVG logos are filtered out since
// they cannot be rendered into raster files.
func (p *Pipeline) Candidates(ctx context.Context, kind media.Kind, tmdbID int, t media.Type) ([]tmdb.Image, error) {
	imgs, err := p.provider.Images(ctx, kind, tmdbID)
	if err != nil {
		return nil, err
	}
	return usable(imgs.ByType(t)), nil
}

// Apply installs the best candidate of the given type into dir. When
// the provider has none, the verdict is recorded so scans stop counting
// the title as missing, and ErrUnavailable is returned.
func (p *Pipeline) Apply(ctx context.Context, kind media.Kind, tmdbID int, dir string, t media.Type) error {
	candidates, err := p.Candidates(ctx, kind, tmdbID, t)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		p.markUnavailable(kind, tmdbID, t, dir)
		return fmt.Errorf("%w: %s for tmdb-%d", ErrUnavailable, t, tmdbID)
	}
	return p.Install(ctx, kind, tmdbID, dir, t, best(candidates).FilePath)
}

// Install downloads a specific provider image and installs it as the
// canonical artwork file for its type, removing stale variants and
// regenerating the thumbnail.
func (p *Pipeline) Install(ctx context.Context, kind media.Kind, tmdbID int, dir string, t media.Type, providerPath string) error {
	data, err := p.provider.Download(ctx, providerPath)
	if err != nil {
		if errors.Is(err, tmdb.ErrNotFound) {
			p.markUnavailable(kind, tmdbID, t, dir)
			return fmt.Errorf("%w: %s for tmdb-%d", ErrUnavailable, t, tmdbID)
		}
		return err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(providerPath)), ".")
	if !validExt(t, ext) {
		ext = t.Extensions()[0]
	}
	target := filepath.Join(dir, string(t)+"."+ext)

	// Drop every other-extension variant and stale thumbnails first, so
	// a scan never sees two canonical files for one type.
	for _, e := range t.Extensions() {
		variant := filepath.Join(dir, string(t)+"."+e)
		if variant != target {
			if err := filesystem.RemoveQuiet(variant); err != nil {
				p.logger.Warn("removing stale artwork failed", "path", variant, "error", err)
			}
		}
		if err := filesystem.RemoveQuiet(filepath.Join(dir, t.ThumbName(e))); err != nil {
			p.logger.Warn("removing stale thumbnail failed", "path", t.ThumbName(e), "error", err)
		}
	}

	if err := filesystem.WriteFileAtomic(target, data, 0o644); err != nil {
		return fmt.Errorf("installing artwork: %w", err)
	}

	thumbTarget := filepath.Join(dir, t.ThumbName(thumbExt(t, ext)))
	if err := thumbnail.GenerateFile(t, target, thumbTarget); err != nil {
		// The artwork itself is in place; the background worker retries
		// the thumbnail on the next pass.
		p.logger.Warn("thumbnail generation failed", "path", target, "error", err)
	}

	if p.mappings != nil {
		if err := p.mappings.MarkAvailable(kind, tmdbID, t); err != nil {
			p.logger.Warn("recording availability failed", "tmdb_id", tmdbID, "error", err)
		}
	}

	p.logger.Info("artwork installed", "path", target, "type", string(t), "tmdb_id", tmdbID)

	if p.bus != nil {
		p.bus.Publish(event.Event{
			Type: event.ArtworkDownloaded,
			Data: map[string]any{
				"path":    target,
				"type":    string(t),
				"tmdb_id": tmdbID,
			},
		})
	}
	return nil
}

func (p *Pipeline) markUnavailable(kind media.Kind, tmdbID int, t media.Type, dir string) {
	if p.mappings != nil {
		if err := p.mappings.MarkUnavailable(kind, tmdbID, t); err != nil {
			p.logger.Warn("recording unavailability failed", "tmdb_id", tmdbID, "error", err)
		}
	}
	p.logger.Info("artwork unavailable upstream",
		"dir", filepath.Base(dir), "type", string(t), "tmdb_id", tmdbID)
	if p.bus != nil {
		p.bus.Publish(event.Event{
			Type: event.ArtworkUnavailable,
			Data: map[string]any{
				"dir":     filepath.Base(dir),
				"type":    string(t),
				"tmdb_id": tmdbID,
			},
		})
	}
}

// best prefers English-tagged candidates, then language-neutral ones,
// keeping the provider's vote ordering within each group.
func best(candidates []tmdb.Image) tmdb.Image {
	for _, img := range candidates {
		if img.Language == "en" {
			return img
		}
	}
	for _, img := range candidates {
		if img.Language == "" {
			return img
		}
	}
	return candidates[0]
}

func usable(imgs []tmdb.Image) []tmdb.Image {
	out := make([]tmdb.Image, 0, len(imgs))
	for _, img := range imgs {
		if strings.EqualFold(filepath.Ext(img.FilePath), ".svg") {
			continue
		}
		out = append(out, img)
	}
	return out
}

func validExt(t media.Type, ext string) bool {
	for _, e := range t.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// thumbExt mirrors the background worker's rule: logo thumbnails stay
// PNG, the rest follow the artwork file.
func thumbExt(t media.Type, artworkExt string) string {
	if t == media.TypeLogo {
		return "png"
	}
	return artworkExt
}
