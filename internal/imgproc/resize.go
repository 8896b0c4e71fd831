package imgproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"

	// raster decoders for image.Decode / image.DecodeConfig
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Downscale bounds the longer edge of the image to maxEdge, preserving the
// aspect ratio, and re-encodes as JPEG at the given quality. Images already
// within the bound keep their dimensions; there is no upscaling.
// Returns the payload and the achieved width and height.
func Downscale(data []byte, maxEdge, quality int) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: decode: %v", ErrCompression, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	longer := width
	if height > width {
		longer = height
	}

	targetW, targetH := width, height
	if longer > maxEdge {
		scale := float64(maxEdge) / float64(longer)
		if width >= height {
			targetW = maxEdge
			targetH = clampDim(math.Round(float64(height) * scale))
		} else {
			targetH = maxEdge
			targetW = clampDim(math.Round(float64(width) * scale))
		}
		img = imaging.Resize(img, targetW, targetH, imaging.Lanczos)
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	buf.Grow(256 * 1024) // typical photo after downscale
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: encode jpeg: %v", ErrCompression, err)
	}
	if buf.Len() == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty output", ErrCompression)
	}
	return buf.Bytes(), targetW, targetH, nil
}

func clampDim(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}
