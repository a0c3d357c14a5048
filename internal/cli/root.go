package cli

import (
	"github.com/spf13/cobra"

	configcmd "github.com/coral-mesh/pipelinescope/internal/cli/config"
	diffcmd "github.com/coral-mesh/pipelinescope/internal/cli/diff"
	"github.com/coral-mesh/pipelinescope/internal/cli/duckdb"
	initcmd "github.com/coral-mesh/pipelinescope/internal/cli/init"
	reportcmd "github.com/coral-mesh/pipelinescope/internal/cli/report"
	"github.com/coral-mesh/pipelinescope/internal/cli/runs"
	"github.com/coral-mesh/pipelinescope/pkg/version"
)

// NewRootCmd builds the pipelinescope command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipelinescope",
		Short: "PipelineScope - function profiling and extrapolation for data pipelines",
		Long: `Profile a data pipeline on a small sample and project its cost at production size.

Instrument functions with pipelinescope.Track, run the pipeline on a sample of
sample_size records, and PipelineScope records per-function call counts,
wall-clock and self time, CPU, memory, and GPU usage, then extrapolates them
linearly to expected_size records.

This CLI inspects what the runs produced:
- report: ranked hotspots of a run, as a table, JSON, CSV, or HTML
- diff:   function-by-function comparison of two runs
- runs:   run directories or the DuckDB history, with per-function trends
- prompt: an LLM prompt for optimizing the top hotspot, optionally answered
- duckdb: SQL over the run history`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(initcmd.NewInitCmd())
	rootCmd.AddCommand(configcmd.NewConfigCmd())
	rootCmd.AddCommand(reportcmd.NewReportCmd())
	rootCmd.AddCommand(reportcmd.NewPromptCmd())
	rootCmd.AddCommand(diffcmd.NewDiffCmd("diff [run-a run-b]"))
	rootCmd.AddCommand(runs.NewRunsCmd())
	rootCmd.AddCommand(duckdb.NewDuckDBCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(version.String())
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExecuteDiff runs the diff command as a standalone program.
func ExecuteDiff() error {
	cmd := diffcmd.NewDiffCmd("psdiff [run-a run-b]")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.Version = version.Version
	return cmd.Execute()
}
