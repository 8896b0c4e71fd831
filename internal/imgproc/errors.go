package imgproc

import "errors"

var (
	// ErrContainerDecode means a camera container (HEIC/HEIF) could not be
	// converted into a decodable raster payload.
	ErrContainerDecode = errors.New("camera container conversion failed")

	// ErrCompression means decoding or re-encoding the raster payload failed.
	ErrCompression = errors.New("image compression failed")

	// ErrMetadata means the final payload could not be decoded for geometry.
	ErrMetadata = errors.New("image metadata extraction failed")
)
