package upload

import (
	"time"

	"photoflow/internal/imgproc"
)

type Status string

const (
	StatusLoading   Status = "loading"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Item is one user-submitted photo moving through the ingestion pipeline.
// DisplayPath is set only when Status is ready; Metadata likewise.
type Item struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	Status      Status            `json:"status"`
	Progress    int               `json:"progress"`
	Error       string            `json:"error,omitempty"`
	DisplayPath string            `json:"display_path,omitempty"`
	Metadata    *imgproc.Metadata `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`

	// source holds the original payload until the item reaches ready.
	// Kept for error/cancelled items so retry can rerun the pipeline.
	source   []byte
	origSize int64
}

// IncomingFile is one entry of a submitted batch.
type IncomingFile struct {
	Name string
	Size int64
	Data []byte
}

// Options configures a Manager.
type Options struct {
	DataDir           string
	MaxItems          int
	MaxFileSize       int64
	MaxEdge           int
	JPEGQuality       int
	AllowedExtensions []string
}

const (
	defaultMaxItems    = 100
	defaultMaxFileSize = 50 << 20 // 50 MiB
)
