package config

import "time"

// FileName is the configuration file discovered in the working directory and its parents.
const FileName = ".pipelinescope.yaml"

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "PIPELINESCOPE_"

// Config holds every profiling and reporting setting.
type Config struct {
	// SampleSize is the number of records processed by the profiled run. Zero disables
	// extrapolation.
	SampleSize int `yaml:"sample_size" env:"PIPELINESCOPE_SAMPLE_SIZE"`
	// ExpectedSize is the number of records in the production workload.
	ExpectedSize int `yaml:"expected_size" env:"PIPELINESCOPE_EXPECTED_SIZE"`

	// OutputDir receives one run_<unix> directory per run. Empty disables all writers.
	OutputDir string `yaml:"output_dir" env:"PIPELINESCOPE_OUTPUT_DIR"`

	EnableDashboard bool   `yaml:"enable_dashboard" env:"PIPELINESCOPE_ENABLE_DASHBOARD"`
	DashboardTitle  string `yaml:"dashboard_title" env:"PIPELINESCOPE_DASHBOARD_TITLE"`

	// Report-time filters. They never affect what is recorded.
	MinTimeThresholdMs float64 `yaml:"min_time_threshold_ms" env:"PIPELINESCOPE_MIN_TIME_THRESHOLD_MS"`
	MinTimePercentage  float64 `yaml:"min_time_percentage" env:"PIPELINESCOPE_MIN_TIME_PERCENTAGE"`

	// IgnoreModules are substrings matched against module and source file paths.
	IgnoreModules  []string `yaml:"ignore_modules" env:"PIPELINESCOPE_IGNORE_MODULES"`
	CollapseStdlib bool     `yaml:"collapse_stdlib" env:"PIPELINESCOPE_COLLAPSE_STDLIB"`

	EnableCPUMonitoring bool          `yaml:"enable_cpu_monitoring" env:"PIPELINESCOPE_ENABLE_CPU_MONITORING"`
	EnableGPUMonitoring bool          `yaml:"enable_gpu_monitoring" env:"PIPELINESCOPE_ENABLE_GPU_MONITORING"`
	SampleInterval      time.Duration `yaml:"sample_interval" env:"PIPELINESCOPE_SAMPLE_INTERVAL"`

	EnablePprof bool `yaml:"enable_pprof" env:"PIPELINESCOPE_ENABLE_PPROF"`

	EnableHistory bool `yaml:"enable_history" env:"PIPELINESCOPE_ENABLE_HISTORY"`
	// HistoryPath defaults to <output_dir>/history.duckdb.
	HistoryPath string `yaml:"history_path,omitempty" env:"PIPELINESCOPE_HISTORY_PATH"`

	EnableConsoleLogging bool   `yaml:"enable_console_logging" env:"PIPELINESCOPE_ENABLE_CONSOLE_LOGGING"`
	LogFile              string `yaml:"log_file" env:"PIPELINESCOPE_LOG_FILE"`
	LogLevel             string `yaml:"log_level" env:"PIPELINESCOPE_LOG_LEVEL"`

	// Advisor configures 'pipelinescope prompt --ask'.
	Advisor AdvisorConfig `yaml:"advisor"`
}

// AdvisorConfig selects the LLM that answers optimization prompts. API keys are read
// from the provider's environment variable (OPENAI_API_KEY, GOOGLE_API_KEY).
type AdvisorConfig struct {
	// Model is "<provider>:<model>", e.g. "openai:gpt-4o-mini" or "google:gemini-2.0-flash".
	Model string `yaml:"model" env:"PIPELINESCOPE_ADVISOR_MODEL"`
	// BaseURL targets an OpenAI-compatible endpoint such as a local Ollama server.
	BaseURL string `yaml:"base_url,omitempty" env:"PIPELINESCOPE_ADVISOR_BASE_URL"`
}
