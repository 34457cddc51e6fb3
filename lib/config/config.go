// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the file-configurable defaults for a capture.
type Config struct {
	// TracefsRoot overrides tracefs mount-point detection. Empty
	// means detect.
	TracefsRoot string `yaml:"tracefs_root"`

	// BufferSizeKB is the default per-CPU ring buffer size.
	BufferSizeKB int `yaml:"buffer_size_kb"`

	// DurationSeconds is the default capture window.
	DurationSeconds int `yaml:"duration_seconds"`

	// Format is the default compressed stream format.
	Format string `yaml:"format"`
}

// Default returns the built-in capture defaults.
func Default() Config {
	return Config{
		BufferSizeKB:    1024,
		DurationSeconds: 5,
		Format:          "zlib",
	}
}

// Load reads the file named by KTRACE_CONFIG. When the variable is
// unset, the built-in defaults apply; a named but unreadable or
// invalid file is an error, never silently ignored.
func Load() (Config, error) {
	path := os.Getenv("KTRACE_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from an explicit path. Fields missing
// from the file keep their default values.
func LoadFile(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BufferSizeKB < 1 {
		return fmt.Errorf("buffer_size_kb must be at least 1, got %d", c.BufferSizeKB)
	}
	if c.DurationSeconds < 0 {
		return fmt.Errorf("duration_seconds cannot be negative")
	}
	switch c.Format {
	case "auto", "zlib", "zstd", "lz4":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}
