package framefile

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidRGB(w, h int, r, g, b byte) []byte {
	out := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		out[i*3], out[i*3+1], out[i*3+2] = r, g, b
	}
	return out
}

func TestWriteProducesDecodableJPEGAtTargetWidth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")

	err := Write(path, solidRGB(100, 50, 200, 10, 10), 100, 50, 40)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestWriteDropsTimestampSibling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")

	require.NoError(t, Write(path, solidRGB(10, 10, 1, 2, 3), 10, 10, 0))

	data, err := os.ReadFile(filepath.Join(dir, "frame.timestamp.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestWriteRejectsInvalidDimensions(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "x.jpg"), nil, 0, 0, 0)
	assert.Error(t, err)
}

func TestResizeNearestPreservesCorners(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, image.White)
	dst := resizeNearest(src, 4, 4)
	assert.Equal(t, 4, dst.Bounds().Dx())
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(3, 3))
}
