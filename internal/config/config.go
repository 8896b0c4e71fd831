package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort        = 8080
	defaultDataDir     = "data"
	defaultMaxItems    = 100
	defaultMaxFileSize = "50 MiB"
	defaultMaxEdge     = 2048
	defaultJPEGQuality = 80
)

// Config describes runtime configuration for the service.
type Config struct {
	Port              int      `yaml:"port"`
	DataDir           string   `yaml:"data_dir"`
	MaxItems          int      `yaml:"max_items"`
	MaxFileSize       string   `yaml:"max_file_size"`
	MaxEdge           int      `yaml:"max_edge"`
	JPEGQuality       int      `yaml:"jpeg_quality"`
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// MaxFileSizeBytes is derived from MaxFileSize during Load.
	MaxFileSizeBytes int64 `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:              defaultPort,
		DataDir:           defaultDataDir,
		MaxItems:          defaultMaxItems,
		MaxFileSize:       defaultMaxFileSize,
		MaxEdge:           defaultMaxEdge,
		JPEGQuality:       defaultJPEGQuality,
		AllowedExtensions: defaultExtensions(),
		MaxFileSizeBytes:  50 << 20,
	}
}

func defaultExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif", ".heic", ".heif"}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, cfg.normalize()
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.MaxItems < 1 {
		return fmt.Errorf("invalid max_items: %d (must be >= 1)", c.MaxItems)
	}
	if c.MaxEdge < 1 {
		return fmt.Errorf("invalid max_edge: %d (must be >= 1)", c.MaxEdge)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg_quality: %d (must be 1..100)", c.JPEGQuality)
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = defaultMaxFileSize
	}
	// accepts human-readable sizes like "50 MiB" or "10MB"
	sizeBytes, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("invalid max_file_size %q: %w", c.MaxFileSize, err)
	}
	if sizeBytes == 0 {
		return fmt.Errorf("invalid max_file_size %q: must be positive", c.MaxFileSize)
	}
	c.MaxFileSizeBytes = int64(sizeBytes)
	c.AllowedExtensions = normalizeExtensions(c.AllowedExtensions)
	return nil
}

func normalizeExtensions(in []string) []string {
	if len(in) == 0 {
		return defaultExtensions()
	}
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, ext := range in {
		e := strings.ToLower(strings.TrimSpace(ext))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		normalized = append(normalized, e)
	}
	return normalized
}
