// Package config provides configuration loading, discovery, and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/pipelinescope/internal/safe"
)

// MaxParentDirs is how many parent directories Discover walks above the start directory.
const MaxParentDirs = 5

// Discover looks for FileName in dir and up to MaxParentDirs of its parents.
func Discover(dir string) (string, bool) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}

	for i := 0; i <= MaxParentDirs; i++ {
		candidate := filepath.Join(current, FileName)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", false
}

// Load returns the effective configuration: defaults, then the file at path (or the
// discovered file when path is empty), then PIPELINESCOPE_* environment overrides.
//
// Load always returns a usable config. A non-nil error describes file or validation
// problems that callers should surface as warnings; it never means "do not start".
func Load(path string) (*Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err == nil {
			path, _ = Discover(wd)
		}
	}

	cfg := Default()
	var loadErr error
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			loadErr = err
		} else {
			cfg = fileCfg
		}
	}

	if err := MergeFromEnv(cfg); err != nil {
		if loadErr == nil {
			loadErr = fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	if loadErr != nil {
		return cfg, loadErr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile parses path over the defaults. Keys absent from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := safe.ReadFile(path, &safe.ReadOptions{MaxSize: 1 << 20, AllowSymlinks: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		//nolint:gosec // G301: Directory needs standard permissions for traversal
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: Config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration to path unless a file already exists.
// It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check %s: %w", path, err)
	}

	if err := Default().Save(path); err != nil {
		return false, err
	}
	return true, nil
}
