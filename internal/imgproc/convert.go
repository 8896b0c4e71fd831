package imgproc

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// cameraContainerExts lists wrapping formats that standard raster decoders
// cannot read and that need explicit conversion first.
var cameraContainerExts = map[string]bool{
	".heic": true,
	".heif": true,
}

// IsCameraContainer reports whether the file name indicates a proprietary
// camera container (iPhone HEIC and friends).
func IsCameraContainer(name string) bool {
	return cameraContainerExts[strings.ToLower(filepath.Ext(name))]
}

// Converter turns HEIC/HEIF payloads into JPEG by shelling out to an
// installed converter. Shelling out avoids CGO bindings to libheif.
// Install: apt install libheif-examples / brew install libheif
type Converter struct {
	once    sync.Once
	binPath string
	argsFor func(src, dst string, quality int) []string
}

func (c *Converter) probe() {
	c.once.Do(func() {
		if p, err := exec.LookPath("heif-convert"); err == nil {
			c.binPath = p
			c.argsFor = func(src, dst string, quality int) []string {
				return []string{"-q", fmt.Sprintf("%d", quality), src, dst}
			}
			return
		}
		if p, err := exec.LookPath("magick"); err == nil {
			c.binPath = p
			c.argsFor = func(src, dst string, quality int) []string {
				return []string{src, "-quality", fmt.Sprintf("%d", quality), dst}
			}
		}
	})
}

// Available reports whether a converter binary was found in PATH.
func (c *Converter) Available() bool {
	c.probe()
	return c.binPath != ""
}

// Convert re-encodes a camera container payload as JPEG at the given quality.
// No partial output is produced on failure.
func (c *Converter) Convert(data []byte, quality int) ([]byte, error) {
	if !c.Available() {
		return nil, fmt.Errorf("%w: no heif-convert or magick in PATH", ErrContainerDecode)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	srcFile, err := os.CreateTemp("", "photoflow_src_*.heic")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp: %v", ErrContainerDecode, err)
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	if _, err := srcFile.Write(data); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("%w: write temp: %v", ErrContainerDecode, err)
	}
	srcFile.Close()

	dstFile, err := os.CreateTemp("", "photoflow_dst_*.jpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp: %v", ErrContainerDecode, err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	cmd := exec.Command(c.binPath, c.argsFor(srcPath, dstPath, quality)...) //nolint:gosec // binPath comes from LookPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrContainerDecode, err, string(out))
	}

	converted, err := os.ReadFile(dstPath) //nolint:gosec // temp path owned by this call
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrContainerDecode, err)
	}
	if len(converted) == 0 {
		return nil, fmt.Errorf("%w: converter produced no output", ErrContainerDecode)
	}
	return converted, nil
}
