// Package report implements the 'pipelinescope report' and 'pipelinescope prompt' commands.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/logging"
	"github.com/coral-mesh/pipelinescope/internal/report"
	"github.com/coral-mesh/pipelinescope/internal/result"
)

type reportFlags struct {
	configPath string
	format     string
	top        int
	filter     string
	html       bool
	modules    bool
	stdlib     bool
	all        bool
}

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	var f reportFlags

	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Show the hotspots of a profiling run",
		Long: `Show the hotspots of a profiling run, ranked by projected self time.

Without a run directory the newest run under output_dir is used. Functions below
min_time_threshold_ms or min_time_percentage are hidden unless --all is set.

The --filter flag takes a CEL expression over call_count, total_time_ms,
self_time_ms, avg_time_ms, projected_time_ms, percentage, module, and name.

Examples:
  pipelinescope report
  pipelinescope report .pipelinescope_output/run_1767225600 --top 5
  pipelinescope report --filter 'module.startsWith("github.com/acme/etl") && call_count > 100'
  pipelinescope report --html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(f.format, helpers.ListFormats); err != nil {
				return err
			}
			cfg := helpers.LoadConfig(cmd, f.configPath)
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return runReport(cmd.OutOrStdout(), cfg, ref, f)
		},
	}

	helpers.AddConfigFlag(cmd, &f.configPath)
	helpers.AddFormatFlag(cmd, &f.format, helpers.FormatTable, helpers.ListFormats)
	cmd.Flags().IntVarP(&f.top, "top", "n", 20, "Number of functions to show (negative shows all)")
	cmd.Flags().StringVar(&f.filter, "filter", "", "CEL expression selecting functions")
	cmd.Flags().BoolVar(&f.html, "html", false, "Also write the HTML summary into the run directory")
	cmd.Flags().BoolVar(&f.modules, "modules", false, "Also show the per-module rollup")
	cmd.Flags().BoolVar(&f.stdlib, "stdlib", false, "Include standard library functions")
	cmd.Flags().BoolVar(&f.all, "all", false, "Ignore the configured time thresholds")

	return cmd
}

func analyzerFor(cfg *config.Config, res *result.Result, f reportFlags) (*report.Analyzer, error) {
	opts := report.Options{
		MinTimeThresholdMs: cfg.MinTimeThresholdMs,
		MinTimePercentage:  cfg.MinTimePercentage,
		IncludeStdlib:      f.stdlib,
	}
	if f.all {
		opts.MinTimeThresholdMs = 0
		opts.MinTimePercentage = 0
	}
	if f.filter != "" {
		flt, err := report.NewFilter(f.filter)
		if err != nil {
			return nil, err
		}
		opts.Filter = flt
	}
	return report.NewAnalyzer(res, opts), nil
}

func runReport(out io.Writer, cfg *config.Config, ref string, f reportFlags) error {
	dir, err := helpers.ResolveRunDir(ref, cfg.OutputDir)
	if err != nil {
		return err
	}
	res, err := result.Load(dir)
	if err != nil {
		return err
	}
	a, err := analyzerFor(cfg, res, f)
	if err != nil {
		return err
	}
	fns, err := a.Hotspots(f.top)
	if err != nil {
		return err
	}

	if f.html {
		runDir := dir
		if filepath.Base(dir) == result.DataFile {
			runDir = filepath.Dir(dir)
		}
		path := filepath.Join(runDir, result.SummaryFile)
		logger := logging.New(logging.Config{Level: "warn", Pretty: true})
		if err := report.WriteHTML(path, a, cfg.DashboardTitle, time.Now(), logger); err != nil {
			return err
		}
		defer func() { _, _ = fmt.Fprintf(out, "HTML summary: %s\n", path) }()
	}

	if f.format != string(helpers.FormatTable) {
		formatter, err := helpers.NewFormatter(helpers.OutputFormat(f.format))
		if err != nil {
			return err
		}
		return formatter.Format(functionRows(fns), out)
	}

	report.RenderSummary(out, cfg.DashboardTitle, res.Metadata)
	_, _ = fmt.Fprintln(out)
	report.RenderFunctions(out, fns)
	if f.modules {
		_, _ = fmt.Fprintln(out)
		report.RenderModules(out, a.ByModule())
	}
	return nil
}

// functionRow is the machine-readable form of a reported function.
type functionRow struct {
	Key             string  `json:"key" header:"Function"`
	Module          string  `json:"module"`
	Name            string  `json:"name"`
	CallCount       int64   `json:"call_count" header:"Calls"`
	TotalTimeMs     float64 `json:"total_time_ms" header:"Total (ms)"`
	SelfTimeMs      float64 `json:"self_time_ms" header:"Self (ms)"`
	AvgTimeMs       float64 `json:"avg_time_ms" header:"Avg (ms)"`
	ProjectedCalls  int64   `json:"projected_calls,omitempty" header:"Projected calls"`
	ProjectedTimeMs float64 `json:"projected_time_ms,omitempty" header:"Projected (ms)"`
	Percentage      float64 `json:"percentage" header:"%"`
	CPUPercent      float64 `json:"cpu_percent" header:"CPU %"`
	PeakMemoryMB    float64 `json:"peak_memory_mb" header:"Peak MB"`
}

func functionRows(fns []report.Function) []functionRow {
	rows := make([]functionRow, 0, len(fns))
	for _, fn := range fns {
		rows = append(rows, functionRow{
			Key:             fn.Key,
			Module:          fn.Identity.Module,
			Name:            fn.Identity.Name,
			CallCount:       fn.CallCount,
			TotalTimeMs:     fn.TotalTimeMs,
			SelfTimeMs:      fn.SelfTimeMs,
			AvgTimeMs:       fn.AvgTimeMs,
			ProjectedCalls:  fn.ProjectedCalls,
			ProjectedTimeMs: fn.ProjectedTimeMs,
			Percentage:      fn.Percentage,
			CPUPercent:      fn.CPUPercent,
			PeakMemoryMB:    fn.PeakMemoryMB,
		})
	}
	return rows
}
