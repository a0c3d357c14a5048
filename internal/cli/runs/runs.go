// Package runs implements the 'pipelinescope runs' command family.
package runs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/logging"
	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
	"github.com/coral-mesh/pipelinescope/internal/store"
)

// runRow is one listed run.
type runRow struct {
	RunID      string    `json:"run_id" header:"Run"`
	Ended      time.Time `json:"end_time" header:"Ended"`
	DurationMs float64   `json:"duration_ms" header:"Duration (ms)"`
	Functions  int64     `json:"functions" header:"Functions"`
	Scale      float64   `json:"scale_factor" header:"Scale"`
	Location   string    `json:"location" header:"Location"`
}

type listFlags struct {
	configPath  string
	format      string
	history     bool
	historyPath string
	limit       int
	time        helpers.TimeFlags
}

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded profiling runs",
		Long: `List profiling runs, newest first.

By default the run directories under output_dir are listed. With --history the
runs recorded in the DuckDB history database are listed instead.

Examples:
  pipelinescope runs
  pipelinescope runs --history --since 168h -o csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(f.format, helpers.ListFormats); err != nil {
				return err
			}
			cfg := helpers.LoadConfig(cmd, f.configPath)
			return runList(cmd.Context(), cmd.OutOrStdout(), cfg, f, time.Now())
		},
	}

	helpers.AddConfigFlag(cmd, &f.configPath)
	helpers.AddFormatFlag(cmd, &f.format, helpers.FormatTable, helpers.ListFormats)
	helpers.AddHistoryFlag(cmd, &f.history)
	cmd.Flags().StringVar(&f.historyPath, "history-path", "", "History database (default: history_path or <output_dir>/history.duckdb)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum number of runs (0 lists all)")
	f.time.AddFlags(cmd.Flags())

	cmd.AddCommand(newTrendCmd())

	return cmd
}

func openHistory(cfg *config.Config, path string) (*store.Store, error) {
	if path == "" {
		path = cfg.ResolvedHistoryPath()
	}
	logger := logging.NewWithComponent(logging.Config{Level: cfg.LogLevel, Pretty: true}, "runs")
	s, err := store.Open(path, true, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return s, nil
}

func runList(ctx context.Context, out io.Writer, cfg *config.Config, f listFlags, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	since, err := f.time.Parse(now)
	if err != nil {
		return err
	}

	var rows []runRow
	if f.history {
		rows, err = historyRows(ctx, cfg, f, since)
	} else {
		rows, err = dirRows(cfg.OutputDir, f.limit, since)
	}
	if err != nil {
		return err
	}

	if len(rows) == 0 && f.format == string(helpers.FormatTable) {
		_, _ = fmt.Fprintln(out, "No runs found.")
		return nil
	}
	formatter, err := helpers.NewFormatter(helpers.OutputFormat(f.format))
	if err != nil {
		return err
	}
	return formatter.Format(rows, out)
}

func historyRows(ctx context.Context, cfg *config.Config, f listFlags, since time.Time) ([]runRow, error) {
	s, err := openHistory(cfg, f.historyPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	runs, err := s.ListRuns(ctx, store.ListOptions{Since: since, Limit: f.limit})
	if err != nil {
		return nil, err
	}
	rows := make([]runRow, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, runRow{
			RunID:      r.RunID,
			Ended:      r.EndTime,
			DurationMs: r.DurationMs,
			Functions:  r.Functions,
			Scale:      r.ScaleFactor,
			Location:   r.RunDir,
		})
	}
	return rows, nil
}

func dirRows(outputDir string, limit int, since time.Time) ([]runRow, error) {
	dirs, err := result.ListRunDirs(outputDir)
	if err != nil {
		return nil, err
	}

	rows := make([]runRow, 0, len(dirs))
	for _, d := range dirs {
		if limit > 0 && len(rows) >= limit {
			break
		}
		if !since.IsZero() && d.Ended.Before(since) {
			continue
		}
		res, err := result.Load(d.Path)
		if err != nil {
			rows = append(rows, runRow{RunID: "(unreadable)", Ended: d.Ended, Location: d.Path})
			continue
		}
		md := res.Metadata
		rows = append(rows, runRow{
			RunID:      md.RunID,
			Ended:      md.EndTime,
			DurationMs: md.ProfilingDurationMs,
			Functions:  int64(md.TotalFunctionsTracked),
			Scale:      md.ScaleFactor,
			Location:   d.Path,
		})
	}
	return rows, nil
}

// trendRow is one run of a function's history.
type trendRow struct {
	RunID           string    `json:"run_id" header:"Run"`
	Ended           time.Time `json:"end_time" header:"Ended"`
	CallCount       int64     `json:"call_count" header:"Calls"`
	TotalTimeMs     float64   `json:"total_time_ms" header:"Total (ms)"`
	AvgTimeMs       float64   `json:"avg_time_ms" header:"Avg (ms)"`
	ProjectedTimeMs float64   `json:"extrapolated_total_time_ms" header:"Projected (ms)"`
	Percentage      float64   `json:"percentage_of_total" header:"%"`
}

func newTrendCmd() *cobra.Command {
	var (
		configPath  string
		format      string
		historyPath string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "trend <module:name>",
		Short: "Show one function across the recorded history",
		Long: `Show how one function performed across the runs in the history database,
newest first. The function is named by its module:name key as shown by
'pipelinescope report -o json'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.ListFormats); err != nil {
				return err
			}
			cfg := helpers.LoadConfig(cmd, configPath)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runTrend(ctx, cmd.OutOrStdout(), cfg, historyPath, args[0], format, limit)
		},
	}

	helpers.AddConfigFlag(cmd, &configPath)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.ListFormats)
	cmd.Flags().StringVar(&historyPath, "history-path", "", "History database (default: history_path or <output_dir>/history.duckdb)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 lists all)")

	return cmd
}

func runTrend(ctx context.Context, out io.Writer, cfg *config.Config, historyPath, key, format string, limit int) error {
	id := stats.ParseIdentity(key)
	if id.Module == "" || id.Name == "" {
		return fmt.Errorf("invalid function key %q, expected module:name", key)
	}

	s, err := openHistory(cfg, historyPath)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	history, err := s.FunctionHistory(ctx, id, limit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		_, _ = fmt.Fprintf(out, "No history for %s.\n", key)
		return nil
	}

	rows := make([]trendRow, 0, len(history))
	for _, h := range history {
		rows = append(rows, trendRow{
			RunID:           h.RunID,
			Ended:           h.EndTime,
			CallCount:       h.CallCount,
			TotalTimeMs:     h.TotalTimeMs,
			AvgTimeMs:       h.AvgTimeMs,
			ProjectedTimeMs: h.ProjectedTimeMs,
			Percentage:      h.PercentageOfTotal,
		})
	}
	formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
	if err != nil {
		return err
	}
	return formatter.Format(rows, out)
}
