package media

import (
	"crypto/sha256"
)

// Preset is one of the fixed destination resolutions spec.md §4.6 names.
type Preset struct {
	Name   string
	Width  int
	Height int
	FPS    int
}

// Presets is the fixed quality ladder, lowest first.
var Presets = []Preset{
	{Name: "240p15", Width: 320, Height: 240, FPS: 15},
	{Name: "480p24", Width: 854, Height: 480, FPS: 24},
	{Name: "720p24", Width: 1280, Height: 720, FPS: 24},
	{Name: "1080p20", Width: 1920, Height: 1080, FPS: 20},
}

// DefaultPreset is used when a session negotiates without an explicit choice.
var DefaultPreset = Presets[2]

// letterboxParams is the cached scale/offset for one (source shape, preset)
// pair. Recomputed only when the source shape changes, per spec.md §4.6
// step 3.
type letterboxParams struct {
	srcW, srcH     int
	scaledW, scaledH int
	offsetX, offsetY int
}

func computeLetterbox(srcW, srcH int, preset Preset) letterboxParams {
	scaleX := float64(preset.Width) / float64(srcW)
	scaleY := float64(preset.Height) / float64(srcH)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	scaledW := int(float64(srcW) * scale)
	scaledH := int(float64(srcH) * scale)
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}
	return letterboxParams{
		srcW: srcW, srcH: srcH,
		scaledW: scaledW, scaledH: scaledH,
		offsetX: (preset.Width - scaledW) / 2,
		offsetY: (preset.Height - scaledH) / 2,
	}
}

// Letterboxer caches the transform for the last-seen source shape and
// reuses it across frames of the same shape, only recomputing on a change.
type Letterboxer struct {
	preset Preset
	cached letterboxParams
	have   bool
}

// NewLetterboxer builds a transformer targeting one quality preset.
func NewLetterboxer(preset Preset) *Letterboxer {
	return &Letterboxer{preset: preset}
}

// Transform letterboxes a packed RGB source frame into an RGB destination
// frame at the letterboxer's preset resolution, padding with black where the
// source aspect ratio doesn't fill the target.
func (l *Letterboxer) Transform(src []byte, srcW, srcH int) []byte {
	if !l.have || l.cached.srcW != srcW || l.cached.srcH != srcH {
		l.cached = computeLetterbox(srcW, srcH, l.preset)
		l.have = true
	}
	p := l.cached

	dst := make([]byte, l.preset.Width*l.preset.Height*3)
	for dy := 0; dy < p.scaledH; dy++ {
		srcY := dy * srcH / p.scaledH
		destY := dy + p.offsetY
		if destY < 0 || destY >= l.preset.Height {
			continue
		}
		rowBase := destY * l.preset.Width * 3
		srcRowBase := srcY * srcW * 3
		for dx := 0; dx < p.scaledW; dx++ {
			srcX := dx * srcW / p.scaledW
			destX := dx + p.offsetX
			if destX < 0 || destX >= l.preset.Width {
				continue
			}
			si := srcRowBase + srcX*3
			di := rowBase + destX*3
			if si+2 >= len(src) {
				continue
			}
			dst[di], dst[di+1], dst[di+2] = src[si], src[si+1], src[si+2]
		}
	}
	return dst
}

// ContentHash returns a digest used for the "no frame forwarded twice in
// immediate succession" dedup check (spec.md §4.6).
func ContentHash(frame []byte) [32]byte {
	return sha256.Sum256(frame)
}
