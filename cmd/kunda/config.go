// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	// configEnv names the environment variable holding the default config path.
	configEnv = "KUNDA_CONFIG"
	// defaultCreateMemoryLimit bounds the ultra encoder when nothing else is configured.
	defaultCreateMemoryLimit = "4GiB"
)

// config holds defaults loaded from a YAML file. Command-line flags override it.
type config struct {
	Create  createConfig  `yaml:"create"`
	Extract extractConfig `yaml:"extract"`
	Verbose bool          `yaml:"verbose"`
}

// createConfig mirrors the create command flags.
type createConfig struct {
	Checksum               *bool    `yaml:"checksum"`
	Method                 string   `yaml:"method"`
	Preset                 string   `yaml:"preset"`
	DictSize               string   `yaml:"dict_size"`
	MemoryLimit            string   `yaml:"memory_limit"`
	Include                []string `yaml:"include"`
	Exclude                []string `yaml:"exclude"`
	CaseInsensitive        bool     `yaml:"case_insensitive"`
	FollowSymlinks         bool     `yaml:"follow_symlinks"`
	DisablePathCompression bool     `yaml:"disable_path_compression"`
}

// extractConfig mirrors the extract command flags.
type extractConfig struct {
	FileMode    string `yaml:"file_mode"`
	MemoryLimit string `yaml:"memory_limit"`
	Workers     int    `yaml:"workers"`
	RawNames    bool   `yaml:"raw_names"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *config {
	checksum := true
	return &config{
		Create: createConfig{
			Method:      "lzma",
			Preset:      "fast",
			MemoryLimit: defaultCreateMemoryLimit,
			Checksum:    &checksum,
		},
		Extract: extractConfig{
			FileMode: "auto",
		},
	}
}

// loadConfig reads path, or the file named by KUNDA_CONFIG when path is empty.
// Without either, built-in defaults are returned. There is no search path.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// parseSize parses a human size such as "256MiB" or "4GB". Empty means zero.
func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return n, nil
}
