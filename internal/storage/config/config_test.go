package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "page_size: 8192\nbuffer_pool_size: 64\ndata_dir: /tmp/engine\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PageSize != 8192 || cfg.BufferPoolSize != 64 || cfg.DataDir != "/tmp/engine" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidate_RejectsNonPowerOfTwoPageSize(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 5000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-power-of-two page size")
	}
}

func TestValidate_RejectsNonPositivePoolSize(t *testing.T) {
	cfg := Default()
	cfg.BufferPoolSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive buffer_pool_size")
	}
}
