package thumbnail

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sydlexius/mediarr/internal/media"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, solidImage(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding: %v", err)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, solidImage(w, h)); err != nil {
		t.Fatalf("encoding: %v", err)
	}
}

func TestGenerateDimensions(t *testing.T) {
	tests := []struct {
		name         string
		artworkType  media.Type
		srcW, srcH   int
		wantW, wantH int
	}{
		{"poster from square", media.TypePoster, 600, 600, 300, 450},
		{"poster from tall", media.TypePoster, 1000, 1500, 300, 450},
		{"backdrop from hd", media.TypeBackdrop, 1920, 1080, 300, 169},
		{"backdrop from square", media.TypeBackdrop, 800, 800, 300, 169},
		{"logo shrunk", media.TypeLogo, 1000, 400, 500, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Generate(tt.artworkType, solidImage(tt.srcW, tt.srcH))
			b := out.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGenerateLogoBelowLimitUnchanged(t *testing.T) {
	src := solidImage(300, 100)
	out := Generate(media.TypeLogo, src)
	if out != src {
		t.Error("small logo should pass through without resampling")
	}
}

func TestCenterCropCentersRegion(t *testing.T) {
	// A 1000x500 source cropped to 2:3 keeps full height and trims
	// width symmetrically.
	crop := centerCrop(image.Rect(0, 0, 1000, 500), 2, 3)
	if crop.Dy() != 500 {
		t.Errorf("crop height = %d, want 500", crop.Dy())
	}
	wantW := 500 * 2 / 3
	if crop.Dx() != wantW {
		t.Errorf("crop width = %d, want %d", crop.Dx(), wantW)
	}
	leftMargin := crop.Min.X
	rightMargin := 1000 - crop.Max.X
	if diff := leftMargin - rightMargin; diff < -1 || diff > 1 {
		t.Errorf("crop not centered: margins %d/%d", leftMargin, rightMargin)
	}
}

func TestGenerateFileJPEG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "poster.jpg")
	dst := filepath.Join(dir, "poster-thumb.jpg")
	writeJPEG(t, src, 800, 1200)

	if err := GenerateFile(media.TypePoster, src, dst); err != nil {
		t.Fatalf("GenerateFile: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("opening thumbnail: %v", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %q, want jpeg", format)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 450 {
		t.Errorf("thumbnail is %dx%d, want 300x450", b.Dx(), b.Dy())
	}
}

func TestGenerateFilePNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "logo.png")
	dst := filepath.Join(dir, "logo-thumb.png")
	writePNG(t, src, 1200, 300)

	if err := GenerateFile(media.TypeLogo, src, dst); err != nil {
		t.Fatalf("GenerateFile: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("opening thumbnail: %v", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 125 {
		t.Errorf("thumbnail is %dx%d, want 500x125", b.Dx(), b.Dy())
	}
}

func TestGenerateFileBadSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "poster.jpg")
	if err := os.WriteFile(src, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateFile(media.TypePoster, src, filepath.Join(dir, "poster-thumb.jpg")); err == nil {
		t.Error("expected decode error")
	}
}
