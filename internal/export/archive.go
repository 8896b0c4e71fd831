package export

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Entry is one ready photo to include in the archive.
type Entry struct {
	Name string // original file name, used for the zip entry
	Path string // on-disk processed payload
}

// Result describes the outcome of archiving a single entry.
type Result struct {
	Name string
	Err  string
}

const archiveDirPerm os.FileMode = 0o750

// BuildArchive writes the entries' payloads into a zip at destZipPath. It
// always returns a results slice of the same length as entries; a single
// unreadable payload is reported in its Result and omitted from the archive.
func BuildArchive(ctx context.Context, destZipPath string, entries []Entry) ([]Result, error) {
	if len(entries) == 0 {
		return nil, errors.New("no entries provided")
	}

	if err := os.MkdirAll(filepath.Dir(destZipPath), archiveDirPerm); err != nil { //nolint:gosec // app-owned path
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	zipFile, err := os.Create(destZipPath) //nolint:gosec // path is constructed by the application
	if err != nil {
		return nil, fmt.Errorf("create zip: %w", err)
	}
	zipWriter := zip.NewWriter(zipFile)

	results := make([]Result, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Name: entry.Name, Err: err.Error()}
			continue
		}
		results[i] = addEntry(zipWriter, entry, i)
	}

	if err := zipWriter.Close(); err != nil {
		_ = zipFile.Close()
		log.Error().Err(err).Msg("closing zip writer failed")
		return results, fmt.Errorf("close zip writer: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		log.Error().Err(err).Msg("closing zip file failed")
		return results, fmt.Errorf("close zip file: %w", err)
	}
	return results, nil
}

// addEntry copies one payload into the archive under a collision-free name.
func addEntry(zipWriter *zip.Writer, entry Entry, index int) Result {
	name := entryName(entry.Name, index)
	result := Result{Name: name}

	payload, err := os.Open(entry.Path) //nolint:gosec // path comes from the item store
	if err != nil {
		result.Err = err.Error()
		log.Warn().Str("path", entry.Path).Err(err).Msg("open payload failed")
		return result
	}
	defer payload.Close()

	entryWriter, err := zipWriter.Create(name)
	if err != nil {
		result.Err = err.Error()
		log.Warn().Str("name", name).Err(err).Msg("zip entry create failed")
		return result
	}
	if _, err := io.Copy(entryWriter, payload); err != nil {
		result.Err = err.Error()
		log.Warn().Str("name", name).Err(err).Msg("copy into zip failed")
		return result
	}
	return result
}

// entryName prefixes the original name with its position so that duplicate
// uploads never collide inside the archive.
func entryName(original string, index int) string {
	base := filepath.Base(strings.TrimSpace(original))
	if base == "/" || base == "." || base == "" {
		base = "photo.jpeg"
	}
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".jpeg") && !strings.EqualFold(ext, ".jpg") {
		base = strings.TrimSuffix(base, ext) + ".jpeg"
	}
	return fmt.Sprintf("%03d-%s", index+1, base)
}
