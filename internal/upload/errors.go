package upload

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrNoFiles       = errors.New("no files provided")
	ErrItemNotFound  = errors.New("item not found")
	ErrNotRetryable  = errors.New("item is not in a retryable state")
	ErrBatchInFlight = errors.New("a batch is already being processed")
)

func oversizeMessage(name string, size, limit int64) string {
	return fmt.Sprintf("%s exceeds the size limit: %s > %s",
		name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}
