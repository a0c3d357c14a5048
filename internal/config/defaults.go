package config

import (
	"path/filepath"
	"time"
)

// Defaults.
const (
	DefaultSampleSize         = 100
	DefaultExpectedSize       = 1_000_000
	DefaultOutputDir          = ".pipelinescope_output"
	DefaultDashboardTitle     = "PipelineScope"
	DefaultMinTimeThresholdMs = 1.0
	DefaultMinTimePercentage  = 0.5
	DefaultSampleInterval     = 100 * time.Millisecond
	DefaultLogFile            = "pipelinescope.log"
	DefaultLogLevel           = "info"
	DefaultHistoryFile        = "history.duckdb"
	DefaultAdvisorModel       = "openai:gpt-4o-mini"
)

// DefaultIgnoreModules skips vendored code and the module cache.
func DefaultIgnoreModules() []string {
	return []string{"/vendor/", "/pkg/mod/"}
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		SampleSize:           DefaultSampleSize,
		ExpectedSize:         DefaultExpectedSize,
		OutputDir:            DefaultOutputDir,
		EnableDashboard:      true,
		DashboardTitle:       DefaultDashboardTitle,
		MinTimeThresholdMs:   DefaultMinTimeThresholdMs,
		MinTimePercentage:    DefaultMinTimePercentage,
		IgnoreModules:        DefaultIgnoreModules(),
		CollapseStdlib:       true,
		EnableCPUMonitoring:  true,
		EnableGPUMonitoring:  true,
		SampleInterval:       DefaultSampleInterval,
		EnablePprof:          true,
		EnableHistory:        false,
		EnableConsoleLogging: false,
		LogFile:              DefaultLogFile,
		LogLevel:             DefaultLogLevel,
		Advisor:              AdvisorConfig{Model: DefaultAdvisorModel},
	}
}

// ResolvedHistoryPath returns HistoryPath, or the default location inside OutputDir.
func (c *Config) ResolvedHistoryPath() string {
	if c.HistoryPath != "" {
		return c.HistoryPath
	}
	return filepath.Join(c.OutputDir, DefaultHistoryFile)
}

// ResolvedLogPath returns the log file path. Relative names are placed in OutputDir.
// It returns "" when file logging is disabled.
func (c *Config) ResolvedLogPath() string {
	if c.LogFile == "" {
		return ""
	}
	if filepath.IsAbs(c.LogFile) || c.OutputDir == "" {
		return c.LogFile
	}
	return filepath.Join(c.OutputDir, c.LogFile)
}
