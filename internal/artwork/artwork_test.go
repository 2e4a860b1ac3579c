package artwork

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sydlexius/mediarr/internal/mapping"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/tmdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	images    tmdb.Images
	imagesErr error
	files     map[string][]byte
	downloads []string
}

func (f *fakeProvider) Images(context.Context, media.Kind, int) (tmdb.Images, error) {
	return f.images, f.imagesErr
}

func (f *fakeProvider) Download(_ context.Context, filePath string) ([]byte, error) {
	f.downloads = append(f.downloads, filePath)
	data, ok := f.files[filePath]
	if !ok {
		return nil, tmdb.ErrNotFound
	}
	return data, nil
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, provider Provider) (*Pipeline, *mapping.Store) {
	t.Helper()
	store, err := mapping.NewStore(filepath.Join(t.TempDir(), "mapping.json"), 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return NewPipeline(provider, store, testLogger()), store
}

func TestApplyInstallsBestCandidate(t *testing.T) {
	provider := &fakeProvider{
		images: tmdb.Images{Posters: []tmdb.Image{
			{FilePath: "/neutral.jpg", Language: "", VoteAverage: 6.0},
			{FilePath: "/english.jpg", Language: "en", VoteAverage: 5.5},
		}},
		files: map[string][]byte{"/english.jpg": encodeJPEG(t, 600, 900)},
	}
	p, store := newTestPipeline(t, provider)
	dir := t.TempDir()

	if err := p.Apply(context.Background(), media.KindMovie, 68, dir, media.TypePoster); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(provider.downloads) != 1 || provider.downloads[0] != "/english.jpg" {
		t.Errorf("downloads = %v, want the English candidate", provider.downloads)
	}
	if _, err := os.Stat(filepath.Join(dir, "poster.jpg")); err != nil {
		t.Errorf("poster not installed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "poster-thumb.jpg")); err != nil {
		t.Errorf("thumbnail not generated: %v", err)
	}
	if store.Unavailable(media.KindMovie, 68, media.TypePoster) {
		t.Error("successful install left an unavailability verdict")
	}
}

func TestApplyRemovesStaleVariants(t *testing.T) {
	provider := &fakeProvider{
		images: tmdb.Images{Posters: []tmdb.Image{{FilePath: "/new.png", Language: "en"}}},
		files:  map[string][]byte{"/new.png": encodePNG(t, 600, 900)},
	}
	p, _ := newTestPipeline(t, provider)
	dir := t.TempDir()

	for _, name := range []string{"poster.jpg", "poster-thumb.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := p.Apply(context.Background(), media.KindMovie, 68, dir, media.TypePoster); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "poster.jpg")); err == nil {
		t.Error("stale jpg variant survived a png install")
	}
	if _, err := os.Stat(filepath.Join(dir, "poster.png")); err != nil {
		t.Errorf("new poster missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "poster-thumb.png")); err != nil {
		t.Errorf("new thumbnail missing: %v", err)
	}
}

func TestApplyNoCandidatesMarksUnavailable(t *testing.T) {
	provider := &fakeProvider{images: tmdb.Images{}}
	p, store := newTestPipeline(t, provider)
	dir := t.TempDir()

	err := p.Apply(context.Background(), media.KindMovie, 68, dir, media.TypeLogo)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Apply = %v, want ErrUnavailable", err)
	}
	if !store.Unavailable(media.KindMovie, 68, media.TypeLogo) {
		t.Error("verdict not recorded")
	}
}

func TestCandidatesFilterSVG(t *testing.T) {
	provider := &fakeProvider{
		images: tmdb.Images{Logos: []tmdb.Image{
			{FilePath: "/logo.svg", Language: "en"},
			{FilePath: "/logo.png", Language: "en"},
		}},
	}
	p, _ := newTestPipeline(t, provider)

	got, err := p.Candidates(context.Background(), media.KindMovie, 68, media.TypeLogo)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].FilePath != "/logo.png" {
		t.Errorf("candidates = %+v", got)
	}
}

func TestInstallUnknownExtensionFallsBack(t *testing.T) {
	provider := &fakeProvider{
		files: map[string][]byte{"/weird.webp": encodeJPEG(t, 600, 900)},
	}
	p, _ := newTestPipeline(t, provider)
	dir := t.TempDir()

	if err := p.Install(context.Background(), media.KindMovie, 68, dir, media.TypePoster, "/weird.webp"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "poster.jpg")); err != nil {
		t.Errorf("fallback extension not applied: %v", err)
	}
}

func TestInstallMissingUpstreamFile(t *testing.T) {
	provider := &fakeProvider{files: map[string][]byte{}}
	p, store := newTestPipeline(t, provider)
	dir := t.TempDir()

	err := p.Install(context.Background(), media.KindMovie, 68, dir, media.TypePoster, "/gone.jpg")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Install = %v, want ErrUnavailable", err)
	}
	if !store.Unavailable(media.KindMovie, 68, media.TypePoster) {
		t.Error("verdict not recorded")
	}
}

func TestBestPrefersEnglishThenNeutral(t *testing.T) {
	imgs := []tmdb.Image{
		{FilePath: "/de.jpg", Language: "de"},
		{FilePath: "/neutral.jpg", Language: ""},
		{FilePath: "/en.jpg", Language: "en"},
	}
	if got := best(imgs); got.FilePath != "/en.jpg" {
		t.Errorf("best = %q, want /en.jpg", got.FilePath)
	}
	if got := best(imgs[:2]); got.FilePath != "/neutral.jpg" {
		t.Errorf("best = %q, want /neutral.jpg", got.FilePath)
	}
	if got := best(imgs[:1]); got.FilePath != "/de.jpg" {
		t.Errorf("best = %q, want /de.jpg", got.FilePath)
	}
}
