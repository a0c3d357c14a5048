package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/coral-mesh/pipelinescope/internal/result"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hotStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warmStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// RenderSummary writes the run header: duration, sizes, and data-quality counters.
func RenderSummary(w io.Writer, title string, md result.Metadata) {
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("═", 72)))

	fmt.Fprintf(w, "Run:        %s\n", md.RunID)
	fmt.Fprintf(w, "Duration:   %s\n", FormatDurationMs(md.ProfilingDurationMs))
	fmt.Fprintf(w, "Functions:  %d\n", md.TotalFunctionsTracked)
	if md.ExtrapolationAvailable {
		fmt.Fprintf(w, "Scale:      %s -> %s records (x%.2f)\n",
			FormatCount(int64(md.SampleSize)), FormatCount(int64(md.ExpectedSize)), md.ScaleFactor)
	} else {
		fmt.Fprintf(w, "Scale:      %s\n", warmStyle.Render("extrapolation unavailable: "+md.ExtrapolationError))
	}

	var quality []string
	if md.SelfTimeClamps > 0 {
		quality = append(quality, fmt.Sprintf("%d self-time clamps", md.SelfTimeClamps))
	}
	if md.DroppedEvents > 0 {
		quality = append(quality, fmt.Sprintf("%d dropped events", md.DroppedEvents))
	}
	if md.DiscardedFrames > 0 {
		quality = append(quality, fmt.Sprintf("%d discarded frames", md.DiscardedFrames))
	}
	if md.IncompleteFrames > 0 {
		quality = append(quality, fmt.Sprintf("%d incomplete frames", md.IncompleteFrames))
	}
	if len(quality) > 0 {
		fmt.Fprintf(w, "Quality:    %s\n", warmStyle.Render(strings.Join(quality, ", ")))
	}
	for _, d := range md.Diagnostics {
		fmt.Fprintf(w, "Note:       %s\n", dimStyle.Render(d.Message))
	}
	fmt.Fprintln(w)
}

// RenderFunctions writes fns as a styled table.
func RenderFunctions(w io.Writer, fns []Function) {
	if len(fns) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No functions above the reporting thresholds."))
		return
	}

	rows := make([][]string, len(fns))
	for i, fn := range fns {
		projected := "-"
		if fn.Projected {
			projected = FormatDurationMs(fn.ProjectedSelfTimeMs)
		}
		pct := fmt.Sprintf("%.1f%%", fn.Percentage)
		switch {
		case fn.Percentage >= 25:
			pct = hotStyle.Render(pct)
		case fn.Percentage >= 10:
			pct = warmStyle.Render(pct)
		}
		rows[i] = []string{
			fn.Identity.Name,
			fn.Identity.Module,
			FormatCount(fn.CallCount),
			fmt.Sprintf("%.2fms", fn.TotalTimeMs),
			fmt.Sprintf("%.2fms", fn.SelfTimeMs),
			projected,
			pct,
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("FUNCTION", "MODULE", "CALLS", "TOTAL", "SELF", "PROJECTED SELF", "SHARE").
		Rows(rows...)

	fmt.Fprintln(w, t)
}

// RenderModules writes the module rollup.
func RenderModules(w io.Writer, modules []Module) {
	if len(modules) == 0 {
		return
	}
	rows := make([][]string, len(modules))
	for i, m := range modules {
		rows[i] = []string{
			m.Name,
			fmt.Sprintf("%d", m.FunctionCount),
			FormatCount(m.TotalCalls),
			FormatDurationMs(m.ProjectedTimeMs),
			fmt.Sprintf("%.1f%%", m.Percentage),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("MODULE", "FUNCTIONS", "CALLS", "PROJECTED", "SHARE").
		Rows(rows...)

	fmt.Fprintln(w, t)
}
