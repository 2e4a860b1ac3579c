// Package thumbnail produces small preview images next to canonical
// artwork files, sized per artwork type.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decode-only; some sources ship webp artwork

	"github.com/sydlexius/mediarr/internal/filesystem"
	"github.com/sydlexius/mediarr/internal/media"
)

// Thumbnail dimensions per artwork type. Posters and backdrops are
// center-cropped to a fixed aspect; logos only shrink, preserving
// aspect and transparency.
const (
	posterWidth    = 300
	posterHeight   = 450
	backdropWidth  = 300
	backdropHeight = 169
	logoMaxWidth   = 500

	jpegQuality = 90
)

// Generate renders the thumbnail for one artwork type.
func Generate(t media.Type, src image.Image) image.Image {
	b := src.Bounds()
	switch t {
	case media.TypeLogo:
		if b.Dx() <= logoMaxWidth {
			return src
		}
		h := b.Dy() * logoMaxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		return scale(src, b, logoMaxWidth, h)
	case media.TypeBackdrop:
		return scale(src, centerCrop(b, backdropWidth, backdropHeight), backdropWidth, backdropHeight)
	default:
		return scale(src, centerCrop(b, posterWidth, posterHeight), posterWidth, posterHeight)
	}
}

// GenerateFile reads the artwork at srcPath and atomically writes its
// thumbnail to dstPath, choosing the codec from dstPath's extension.
func GenerateFile(t media.Type, srcPath, dstPath string) error {
	f, err := os.Open(srcPath) //nolint:gosec // G304: paths come from scanned library entries
	if err != nil {
		return fmt.Errorf("opening artwork: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(srcPath), err)
	}

	thumb := Generate(t, src)

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(dstPath)) {
	case ".png":
		err = png.Encode(&buf, thumb)
	default:
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return fmt.Errorf("encoding thumbnail: %w", err)
	}

	if err := filesystem.WriteFileAtomic(dstPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	return nil
}

// centerCrop returns the largest centered sub-rectangle of b with the
// given target aspect ratio.
func centerCrop(b image.Rectangle, aspectW, aspectH int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w*aspectH > h*aspectW {
		cw := h * aspectW / aspectH
		x0 := b.Min.X + (w-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := w * aspectH / aspectW
	y0 := b.Min.Y + (h-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}

// scale resamples the crop region of src into a w by h image.
func scale(src image.Image, crop image.Rectangle, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)
	return dst
}
