package pipelinescope

import "github.com/coral-mesh/pipelinescope/internal/config"

// Config is the profiler configuration, as read from .pipelinescope.yaml.
type Config = config.Config

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return *config.Default()
}

// LoadConfig returns the effective configuration for path, or for the discovered
// .pipelinescope.yaml when path is empty, with PIPELINESCOPE_* overrides applied.
// The returned config is always usable; a non-nil error describes problems worth
// reporting as warnings.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.Load(path)
	return *cfg, err
}
