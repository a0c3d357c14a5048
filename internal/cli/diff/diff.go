// Package diff implements the 'pipelinescope diff' command and the psdiff binary.
package diff

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/diff"
	"github.com/coral-mesh/pipelinescope/internal/logging"
	"github.com/coral-mesh/pipelinescope/internal/store"
)

// ErrRegression is returned with --fail-on-regression when any function regressed.
var ErrRegression = errors.New("performance regression detected")

type diffFlags struct {
	configPath       string
	format           string
	history          bool
	historyPath      string
	changedOnly      bool
	limit            int
	failOnRegression bool
}

var diffFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON}

// NewDiffCmd creates the diff command. use is the command's usage line, so the same
// command serves as a subcommand and as the root of the psdiff binary.
func NewDiffCmd(use string) *cobra.Command {
	var f diffFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: "Compare two profiling runs",
		Long: `Compare two profiling runs function by function.

Run B is compared against run A. Each function is reported as new, removed,
improved, regressed, or stable; a change of more than 10% in projected total
time (observed total time when either run lacks extrapolation) counts as
improved or regressed.

Runs are given as run directories or profile_data.json paths, or as run IDs
with --history. Without arguments the two newest runs under output_dir are
compared.

Examples:
  pipelinescope diff .pipelinescope_output/run_1767225600 .pipelinescope_output/run_1767229200
  pipelinescope diff --history 7d9e... 1c42...
  psdiff --changed --fail-on-regression`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected two runs or none, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(f.format, diffFormats); err != nil {
				return err
			}
			cfg := helpers.LoadConfig(cmd, f.configPath)
			return runDiff(cmd.Context(), cmd.OutOrStdout(), cfg, args, f)
		},
	}

	helpers.AddConfigFlag(cmd, &f.configPath)
	helpers.AddFormatFlag(cmd, &f.format, helpers.FormatTable, diffFormats)
	helpers.AddHistoryFlag(cmd, &f.history)
	cmd.Flags().StringVar(&f.historyPath, "history-path", "", "History database (default: history_path or <output_dir>/history.duckdb)")
	cmd.Flags().BoolVar(&f.changedOnly, "changed", false, "Hide stable functions")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum number of rows (0 shows all)")
	cmd.Flags().BoolVar(&f.failOnRegression, "fail-on-regression", false, "Exit with an error when any function regressed")

	return cmd
}

func runDiff(ctx context.Context, out io.Writer, cfg *config.Config, args []string, f diffFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var hist diff.History
	if f.history {
		path := f.historyPath
		if path == "" {
			path = cfg.ResolvedHistoryPath()
		}
		logger := logging.NewWithComponent(logging.Config{Level: cfg.LogLevel, Pretty: true}, "diff")
		s, err := store.Open(path, true, logger)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer func() { _ = s.Close() }()
		hist = s
	}

	var a, b string
	if len(args) == 2 {
		a, b = args[0], args[1]
	} else {
		if hist != nil {
			return fmt.Errorf("--history needs two run IDs")
		}
		var err error
		a, b, err = diff.LatestPair(cfg.OutputDir)
		if err != nil {
			return err
		}
	}

	rep, err := diff.CompareRefs(ctx, a, b, hist)
	if err != nil {
		return err
	}

	if f.format == string(helpers.FormatJSON) {
		if err := (&helpers.JSONFormatter{}).Format(rep, out); err != nil {
			return err
		}
	} else {
		diff.Render(out, rep, diff.RenderOptions{Limit: f.limit, ChangedOnly: f.changedOnly})
	}

	if f.failOnRegression && rep.Counts()[diff.StatusRegressed] > 0 {
		return ErrRegression
	}
	return nil
}
