// Package config loads the engine's bootstrap configuration (page size,
// buffer pool capacity, data directory, log level) from YAML, following
// the teacher's own use of gopkg.in/yaml.v3 for tool configuration
// (SPEC_FULL.md §4.8).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's bootstrap configuration.
type Config struct {
	PageSize       int    `yaml:"page_size"`
	BufferPoolSize int    `yaml:"buffer_pool_size"`
	DataDir        string `yaml:"data_dir"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns the engine's default configuration.
func Default() *Config {
	return &Config{
		PageSize:       4096,
		BufferPoolSize: 256,
		DataDir:        "./data",
		LogLevel:       "info",
	}
}

// Load reads and validates a YAML configuration file. Fields absent from
// the file keep their Default() value.
func Load(path string) (*Config, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.PageSize < 512 || c.PageSize > 65536 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("config: page_size %d must be a power of two between 512 and 65536", c.PageSize)
	}
	if c.BufferPoolSize <= 0 {
		return fmt.Errorf("config: buffer_pool_size must be positive, got %d", c.BufferPoolSize)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	return nil
}
