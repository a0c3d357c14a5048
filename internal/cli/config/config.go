// Package config implements the 'pipelinescope config' command family.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
	"github.com/coral-mesh/pipelinescope/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect PipelineScope configuration",
		Long: `Inspect PipelineScope configuration.

Configuration Priority:
  1. PIPELINESCOPE_* environment variables (highest)
  2. .pipelinescope.yaml in the working directory or up to five parents
  3. Built-in defaults`,
	}

	cmd.AddCommand(newViewCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPathCmd())

	return cmd
}

func newViewCmd() *cobra.Command {
	var (
		path   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long: `Show the configuration a profiling run would use, after file discovery,
defaults, and environment overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, viewFormats); err != nil {
				return err
			}
			cfg := helpers.LoadConfig(cmd, path)
			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(cfg, cmd.OutOrStdout())
		},
	}

	helpers.AddConfigFlag(cmd, &path)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatYAML, viewFormats)

	return cmd
}

var viewFormats = []helpers.OutputFormat{helpers.FormatYAML, helpers.FormatJSON}

func newValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file and report every violation.

Checks:
- sample_size and expected_size are not negative
- min_time_threshold_ms is not negative and min_time_percentage is within 0-100
- sample_interval is not negative
- log_level is a known level`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), path)
		},
	}

	helpers.AddConfigFlag(cmd, &path)

	return cmd
}

func runValidate(out io.Writer, path string) error {
	source := path
	if source == "" {
		source = "defaults"
		if found, ok := discover(); ok {
			source = found
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		var multi *config.MultiValidationError
		if errors.As(err, &multi) {
			_, _ = fmt.Fprintf(out, "✗ %s has %d problem(s):\n", source, len(multi.Errors))
			for _, e := range multi.Errors {
				_, _ = fmt.Fprintf(out, "  - %s\n", e.Error())
			}
			return fmt.Errorf("invalid configuration")
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "✓ %s is valid (sample_size=%d, expected_size=%d)\n", source, cfg.SampleSize, cfg.ExpectedSize)
	return nil
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show which configuration file would be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			found, ok := discover()
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No .pipelinescope.yaml found; defaults apply.")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), found)
			return nil
		},
	}
}

func discover() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	return config.Discover(wd)
}
