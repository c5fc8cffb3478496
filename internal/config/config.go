// Package config loads pyfoundry's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the ingestion run configuration.
type Config struct {
	// ProjectRoot is the project source root. Required.
	ProjectRoot string `yaml:"project_root"`

	// TypeshedRoot is the optional typeshed directory; each of its
	// top-level subdirectories is one logical stub package.
	TypeshedRoot string `yaml:"typeshed_root"`

	// SearchPaths are additional roots scanned for stubs, in order.
	SearchPaths []string `yaml:"search_paths"`

	// Excludes are glob patterns matched against root-relative paths.
	Excludes []string `yaml:"excludes"`

	// Workers bounds the scheduler pool; 0 means one per CPU.
	Workers int `yaml:"workers"`

	// Sequential disables the worker pool.
	Sequential bool `yaml:"sequential"`

	// Verbose surfaces per-file syntax diagnostics and debug logs.
	Verbose bool `yaml:"verbose"`

	// HashCache is an optional SQLite file persisting path content
	// hashes across runs.
	HashCache string `yaml:"hash_cache"`
}

// Default returns the zero-value configuration.
func Default() *Config {
	return &Config{}
}

// Load reads a YAML config file. A missing path returns defaults;
// invalid YAML is a configuration-level error and therefore fatal.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration-level requirements.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root is required")
	}
	if _, err := os.Stat(c.ProjectRoot); err != nil {
		return fmt.Errorf("project_root: %w", err)
	}
	return nil
}
