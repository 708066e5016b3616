// Package imagex re-encodes captured photos before they are staged in the
// attachment cache.
package imagex

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

// Recompress decodes data (JPEG, PNG or GIF) and re-encodes it as JPEG at
// the given quality (1-100). It returns the compressed bytes and the image
// dimensions.
func Recompress(data []byte, quality int) ([]byte, int, int, error) {
	if quality < 1 || quality > 100 {
		return nil, 0, 0, fmt.Errorf("invalid jpeg quality %d", quality)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	b := img.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}
