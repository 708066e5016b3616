package imagex

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRecompress_ReturnsJPEGAndDimensions(t *testing.T) {
	data := testPNG(t, 12, 8)

	out, w, h, err := Recompress(data, 80)
	require.NoError(t, err)
	require.Equal(t, 12, w)
	require.Equal(t, 8, h)
	require.NotEmpty(t, out)

	// JPEG SOI marker
	require.Equal(t, []byte{0xFF, 0xD8}, out[:2])
}

func TestRecompress_RejectsGarbage(t *testing.T) {
	_, _, _, err := Recompress([]byte("not an image"), 80)
	require.Error(t, err)
}

func TestRecompress_RejectsInvalidQuality(t *testing.T) {
	data := testPNG(t, 2, 2)
	_, _, _, err := Recompress(data, 0)
	require.Error(t, err)
	_, _, _, err = Recompress(data, 101)
	require.Error(t, err)
}
