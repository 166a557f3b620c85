package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  root_dir: /tmp/archive\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.MaxSizeGB != 100 {
		t.Errorf("MaxSizeGB = %d, want 100", cfg.Storage.MaxSizeGB)
	}
	if cfg.Download.Backend != BackendDirect {
		t.Errorf("Backend = %q, want %q", cfg.Download.Backend, BackendDirect)
	}
	if cfg.Download.ParallelDownloads != 3 {
		t.Errorf("ParallelDownloads = %d, want 3", cfg.Download.ParallelDownloads)
	}
	if cfg.Download.GetRequestDelay() != time.Second {
		t.Errorf("RequestDelay = %v, want 1s", cfg.Download.GetRequestDelay())
	}
	if cfg.Validation.MinVideoBytes != 1024*1024 {
		t.Errorf("MinVideoBytes = %d, want 1MiB", cfg.Validation.MinVideoBytes)
	}
	if !cfg.Validation.Enabled {
		t.Error("validation should default to enabled")
	}
	wantDB := filepath.Join("/tmp/archive", "archiver.db")
	if cfg.DatabasePath() != wantDB {
		t.Errorf("DatabasePath() = %q, want %q", cfg.DatabasePath(), wantDB)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing root dir", "storage:\n  max_size_gb: 10\n"},
		{"bad backend", "storage:\n  root_dir: /tmp/a\ndownload:\n  backend: torrent\n"},
		{"accelerator without path", "storage:\n  root_dir: /tmp/a\ndownload:\n  backend: accelerator\n"},
		{"zero quota", "storage:\n  root_dir: /tmp/a\n  max_size_gb: 0\n"},
		{"too many workers", "storage:\n  root_dir: /tmp/a\ndownload:\n  parallel_downloads: 40\n"},
		{"bad delay", "storage:\n  root_dir: /tmp/a\ndownload:\n  request_delay: soon\n"},
		{"bad log level", "storage:\n  root_dir: /tmp/a\nlogging:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

func TestLoad_HybridBackend(t *testing.T) {
	path := writeConfig(t, `storage:
  root_dir: /tmp/archive
download:
  backend: hybrid
  accelerator_path: /usr/local/bin/idman
  max_retries: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Download.Backend != BackendHybrid {
		t.Errorf("Backend = %q, want hybrid", cfg.Download.Backend)
	}
	if cfg.Download.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Download.MaxRetries)
	}
}

func TestStorageConfig_MaxSizeBytes(t *testing.T) {
	c := StorageConfig{MaxSizeGB: 3}
	if got := c.MaxSizeBytes(); got != 3*1024*1024*1024 {
		t.Errorf("MaxSizeBytes() = %d", got)
	}
}
