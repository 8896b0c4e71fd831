package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const appDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
// The write goes through a temporary file in the same directory followed by
// a rename, so readers never observe a half-written state file.
func WriteJSONAtomic(filename string, v any) error {
	return writeAtomic(filename, func(f *os.File) error {
		if err := json.NewEncoder(f).Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}

// WriteBytesAtomic writes data to filename with the same temp-and-rename
// scheme, used for processed image payloads.
func WriteBytesAtomic(filename string, data []byte) error {
	return writeAtomic(filename, func(f *os.File) error {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("write temp: %w", err)
		}
		return nil
	})
}

func writeAtomic(filename string, fill func(*os.File) error) error {
	if filename == "" {
		return errors.New("empty filename")
	}
	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	if err := fill(tempFile); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return err
	}

	// ensure data hits disk before the rename
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	// remove existing file first to avoid permission issues on Windows;
	// if remove fails, rename may still succeed on POSIX
	if _, err := os.Stat(filename); err == nil {
		_ = os.Remove(filename)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
