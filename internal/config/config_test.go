package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAndNormalize(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DataDir == "" || cfg.MaxItems < 1 || cfg.MaxEdge < 1 {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.MaxFileSizeBytes != 50<<20 {
		t.Fatalf("expected default 50 MiB limit, got %d", cfg.MaxFileSizeBytes)
	}

	got := normalizeExtensions([]string{"JPG", ".jpeg", "jpg", "  .HEIC"})

	has := func(slice []string, s string) bool {
		for _, v := range slice {
			if v == s {
				return true
			}
		}
		return false
	}
	if !has(got, ".jpg") || !has(got, ".jpeg") || !has(got, ".heic") {
		t.Fatalf("expected normalized set to contain .jpg,.jpeg,.heic got %v", got)
	}
	if len(got) != 3 {
		t.Fatalf("expected duplicates dropped, got %v", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.MaxItems != defaultMaxItems {
		t.Fatalf("expected default max_items, got %d", cfg.MaxItems)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	content := []byte("port: 9090\ndata_dir: testdata\nmax_items: 10\nmax_file_size: 10 MiB\nmax_edge: 1024\njpeg_quality: 75\nallowed_extensions: [jpg, .png]\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DataDir != "testdata" || cfg.MaxItems != 10 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxFileSizeBytes != 10<<20 {
		t.Fatalf("expected 10 MiB parsed, got %d", cfg.MaxFileSizeBytes)
	}
	if cfg.MaxEdge != 1024 || cfg.JPEGQuality != 75 {
		t.Fatalf("unexpected image settings: %+v", cfg)
	}
	if len(cfg.AllowedExtensions) != 2 || cfg.AllowedExtensions[0] != ".jpg" {
		t.Fatalf("extensions not normalized: %v", cfg.AllowedExtensions)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tempDir := t.TempDir()
	cases := map[string]string{
		"max_items":     "max_items: 0\n",
		"jpeg_quality":  "jpeg_quality: 101\n",
		"max_edge":      "max_edge: -1\n",
		"max_file_size": "max_file_size: lots\n",
	}
	for name, content := range cases {
		path := filepath.Join(tempDir, name+".yml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for %s", name)
		}
	}
}
