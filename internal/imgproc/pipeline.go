package imgproc

import "context"

const (
	// DefaultMaxEdge bounds pixel dimensions of processed photos so the
	// downstream page editor never holds full camera resolution in memory.
	DefaultMaxEdge = 2048

	// DefaultQuality is the fixed JPEG re-encode quality.
	DefaultQuality = 80
)

// Result holds the outcome of processing a single photo.
type Result struct {
	Payload []byte
	Width   int
	Height  int
	Meta    Metadata
}

// Pipeline runs the per-file transformation: camera container conversion,
// dimension bounding, metadata extraction. One Pipeline is shared by all
// items; it carries no per-item state.
type Pipeline struct {
	converter Converter
	maxEdge   int
	quality   int
}

// NewPipeline creates a pipeline with the given bounds. Non-positive values
// fall back to the defaults.
func NewPipeline(maxEdge, quality int) *Pipeline {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Pipeline{maxEdge: maxEdge, quality: quality}
}

// Process transforms one file and returns the displayable payload plus its
// metadata. Any stage failure aborts this item only; no partial payload is
// returned.
func (p *Pipeline) Process(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload := data
	if IsCameraContainer(name) {
		converted, err := p.converter.Convert(data, p.quality)
		if err != nil {
			return nil, err
		}
		payload = converted
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized, width, height, err := Downscale(payload, p.maxEdge, p.quality)
	if err != nil {
		return nil, err
	}

	meta, err := ExtractMetadata(resized, name, int64(len(data)))
	if err != nil {
		return nil, err
	}

	return &Result{Payload: resized, Width: width, Height: height, Meta: meta}, nil
}
