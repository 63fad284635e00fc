package extraction

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
)

const (
	jpegQuality    = 80
	maxScalePasses = 4
)

// compressImage downscales an oversized image (aspect ratio preserved)
// and re-encodes it as JPEG targeting maxBytes. Purely a pre-processing
// optimization before vision/OCR; callers fall back to the original
// bytes on any error.
func compressImage(content []byte, maxBytes int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	// First pass scales area-proportionally toward the byte budget.
	scale := math.Sqrt(float64(maxBytes) / float64(len(content)))
	if scale > 1 {
		scale = 1
	}

	out := content
	for pass := 0; pass < maxScalePasses; pass++ {
		bounds := src.Bounds()
		w := int(float64(bounds.Dx()) * scale)
		h := int(float64(bounds.Dy()) * scale)
		if w < 1 || h < 1 {
			break
		}

		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		out = buf.Bytes()
		if len(out) <= maxBytes {
			return out, nil
		}
		scale *= 0.7
	}
	return out, nil
}
