package imgproc

import (
	"bytes"
	"fmt"
	"image"
)

// Metadata describes the geometry of a processed image plus provenance of
// the original file. Derived from the post-resize payload, not the original.
type Metadata struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	IsPortrait  bool    `json:"is_portrait"`
	IsLandscape bool    `json:"is_landscape"`
	SizeBytes   int64   `json:"size_bytes"`
	FileName    string  `json:"file_name"`
}

// ExtractMetadata decodes just the image header of the processed payload and
// classifies orientation. Square images are neither portrait nor landscape.
func ExtractMetadata(payload []byte, origName string, origSize int64) (Metadata, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	meta := Metadata{
		Width:       cfg.Width,
		Height:      cfg.Height,
		IsPortrait:  cfg.Height > cfg.Width,
		IsLandscape: cfg.Width > cfg.Height,
		SizeBytes:   origSize,
		FileName:    origName,
	}
	if cfg.Height > 0 {
		meta.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}
	return meta, nil
}
