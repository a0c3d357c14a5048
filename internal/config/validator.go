package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

var validLogLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {},
}

// Validate returns every violation as a *MultiValidationError, or nil.
func (c *Config) Validate() error {
	var errors []ValidationError

	if c.SampleSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "sample_size",
			Message: "sample_size must be >= 0",
		})
	}

	if c.ExpectedSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "expected_size",
			Message: "expected_size must be >= 0",
		})
	}

	if c.MinTimeThresholdMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "min_time_threshold_ms",
			Message: "min_time_threshold_ms must be >= 0",
		})
	}

	if c.MinTimePercentage < 0 || c.MinTimePercentage > 100 {
		errors = append(errors, ValidationError{
			Field:   "min_time_percentage",
			Message: "min_time_percentage must be between 0 and 100",
		})
	}

	if c.SampleInterval < 0 {
		errors = append(errors, ValidationError{
			Field:   "sample_interval",
			Message: "sample_interval must not be negative",
		})
	}

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; c.LogLevel != "" && !ok {
		errors = append(errors, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("unknown log level %q", c.LogLevel),
		})
	}

	if c.EnableHistory && c.OutputDir == "" && c.HistoryPath == "" {
		errors = append(errors, ValidationError{
			Field:   "history_path",
			Message: "history requires output_dir or history_path",
		})
	}

	if m := c.Advisor.Model; m != "" {
		if i := strings.Index(m, ":"); i <= 0 || i == len(m)-1 {
			errors = append(errors, ValidationError{
				Field:   "advisor.model",
				Message: fmt.Sprintf("expected <provider>:<model>, got %q", m),
			})
		}
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}
