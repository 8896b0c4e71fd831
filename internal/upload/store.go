package upload

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	fileutil "photoflow/internal/file"
)

// ItemStore abstracts persistence for item state and processed payloads.
// Default implementation is file-based under dataDir/items/<id>/.
type ItemStore interface {
	SaveItem(ctx context.Context, it *Item) error
	SavePayload(ctx context.Context, it *Item, payload []byte) (string, error)
	RemoveItem(ctx context.Context, itemID string) error
	LoadItems(ctx context.Context) ([]*Item, error)
}

type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) ItemStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) itemDir(itemID string) string {
	return filepath.Join(s.dataDir, "items", itemID)
}

func (s *fileStore) statusPath(itemID string) string {
	return filepath.Join(s.itemDir(itemID), "status.json")
}

func (s *fileStore) SaveItem(ctx context.Context, it *Item) error { //nolint:revive // context reserved for future use
	return fileutil.WriteJSONAtomic(s.statusPath(it.ID), it) //nolint:wrapcheck
}

// SavePayload writes the processed image and returns its path. The filename
// carries dimensions and a content hash: <base>.<w>.<h>.<hash>.jpeg.
func (s *fileStore) SavePayload(ctx context.Context, it *Item, payload []byte) (string, error) { //nolint:revive // context reserved for future use
	width, height := 0, 0
	if it.Metadata != nil {
		width, height = it.Metadata.Width, it.Metadata.Height
	}
	name := fmt.Sprintf("%s.%d.%d.%s.jpeg", safeBase(it.FileName), width, height, contentHash(payload))
	path := filepath.Join(s.itemDir(it.ID), name)
	if err := fileutil.WriteBytesAtomic(path, payload); err != nil {
		return "", fmt.Errorf("save payload: %w", err)
	}
	return path, nil
}

// RemoveItem deletes the whole item directory, invalidating the browsable
// handle along with the persisted state.
func (s *fileStore) RemoveItem(ctx context.Context, itemID string) error { //nolint:revive // context reserved for future use
	if err := os.RemoveAll(s.itemDir(itemID)); err != nil {
		return fmt.Errorf("remove item dir: %w", err)
	}
	return nil
}

func (s *fileStore) LoadItems(ctx context.Context) ([]*Item, error) { //nolint:revive // context reserved for future use
	root := filepath.Join(s.dataDir, "items")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	items := make([]*Item, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(s.statusPath(e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var it Item
		if err := json.Unmarshal(b, &it); err != nil {
			continue
		}
		saved := it
		items = append(items, &saved)
	}
	return items, nil
}

// safeBase strips the extension and any path components from a user-supplied
// file name so it can be embedded in an on-disk filename.
func safeBase(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "photo"
	}
	return base
}

// contentHash returns 8 hex chars of xxHash64, enough to make payload names
// unique per content and cache-friendly.
func contentHash(data []byte) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], xxhash.Sum64(data))
	return hex.EncodeToString(b[:])[:8]
}
