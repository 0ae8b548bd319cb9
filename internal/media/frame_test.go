package media

import "testing"

func solidFrame(w, h int, r, g, b byte) []byte {
	buf := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		buf[i*3], buf[i*3+1], buf[i*3+2] = r, g, b
	}
	return buf
}

func TestLetterboxPreservesAspectRatioWithPadding(t *testing.T) {
	// Source is square, destination preset is wide: the source scales to
	// 200x200 and is padded by 100 black columns on the left and right.
	preset := Preset{Name: "test", Width: 400, Height: 200}
	lb := NewLetterboxer(preset)
	src := solidFrame(100, 100, 255, 0, 0)

	dst := lb.Transform(src, 100, 100)
	if len(dst) != preset.Width*preset.Height*3 {
		t.Fatalf("dst length = %d, want %d", len(dst), preset.Width*preset.Height*3)
	}

	// Top-left corner of the padded area should be black (unwritten).
	if dst[0] != 0 || dst[1] != 0 || dst[2] != 0 {
		t.Errorf("expected black padding at top-left, got %v", dst[:3])
	}

	// The vertical center row should contain the scaled red content.
	centerY := preset.Height / 2
	centerX := preset.Width / 2
	idx := (centerY*preset.Width + centerX) * 3
	if dst[idx] != 255 {
		t.Errorf("expected red content at center, got %v", dst[idx:idx+3])
	}
}

func TestLetterboxCachesParamsAcrossSameShape(t *testing.T) {
	preset := Preset{Name: "test", Width: 400, Height: 200}
	lb := NewLetterboxer(preset)
	src := solidFrame(100, 100, 0, 255, 0)

	lb.Transform(src, 100, 100)
	cachedAfterFirst := lb.cached

	lb.Transform(src, 100, 100)
	if lb.cached != cachedAfterFirst {
		t.Errorf("letterbox params recomputed for an unchanged source shape")
	}

	lb.Transform(solidFrame(50, 50, 0, 0, 255), 50, 50)
	if lb.cached == cachedAfterFirst {
		t.Errorf("letterbox params not recomputed after a source shape change")
	}
}

func TestContentHashDetectsDuplicates(t *testing.T) {
	a := solidFrame(10, 10, 1, 2, 3)
	b := solidFrame(10, 10, 1, 2, 3)
	c := solidFrame(10, 10, 1, 2, 4)

	if ContentHash(a) != ContentHash(b) {
		t.Error("identical frames hashed differently")
	}
	if ContentHash(a) == ContentHash(c) {
		t.Error("distinct frames hashed identically")
	}
}
