// Package framefile writes a single rendered frame out as a JPEG file, the
// format spec.md §6 names for capture_frame/make_snapshot replies and for
// the combined-package recording mode's per-frame-images subdirectory. No
// repo in the example pack encodes images, so this leans on the standard
// library's image/jpeg rather than inventing or importing an encoder the
// corpus never demonstrates.
package framefile

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

// DefaultWidth is the output width frames are downscaled to when the
// caller doesn't request a specific one, per spec.md §6's "a reasonably
// sized JPEG, not the full render resolution" guidance.
const DefaultWidth = 640

// Quality is the JPEG encode quality used for all written frames.
const Quality = 85

// Write renders a packed RGB frame (width x height, 3 bytes per pixel) as a
// JPEG at path, downscaled to targetWidth while preserving aspect ratio
// (targetWidth <= 0 means DefaultWidth). It also drops a sibling
// <name>.timestamp.txt (frame.jpg gets frame.timestamp.txt) recording the
// write time, since spec.md §6 requires the
// capture reply to carry when the frame was produced.
func Write(path string, rgb []byte, width, height, targetWidth int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("framefile: invalid source dimensions %dx%d", width, height)
	}
	if targetWidth <= 0 {
		targetWidth = DefaultWidth
	}
	if targetWidth > width {
		targetWidth = width
	}
	targetHeight := height * targetWidth / width
	if targetHeight <= 0 {
		targetHeight = 1
	}

	img := toRGBA(rgb, width, height)
	scaled := resizeNearest(img, targetWidth, targetHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: Quality}); err != nil {
		return fmt.Errorf("framefile: encode jpeg: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("framefile: mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("framefile: write %s: %w", path, err)
	}
	stamp := filepath.Join(dir, strippedName(path)+".timestamp.txt")
	return os.WriteFile(stamp, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}

func strippedName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func toRGBA(rgb []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if i+2 >= len(rgb) {
				continue
			}
			img.SetRGBA(x, y, color.RGBA{R: rgb[i], G: rgb[i+1], B: rgb[i+2], A: 255})
		}
	}
	return img
}

func resizeNearest(src *image.RGBA, dstW, dstH int) *image.RGBA {
	srcB := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	for dy := 0; dy < dstH; dy++ {
		sy := dy * srcB.Dy() / dstH
		for dx := 0; dx < dstW; dx++ {
			sx := dx * srcB.Dx() / dstW
			dst.Set(dx, dy, src.At(srcB.Min.X+sx, srcB.Min.Y+sy))
		}
	}
	return dst
}
