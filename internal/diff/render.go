package diff

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	regressedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	improvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	newStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// RenderOptions controls terminal rendering.
type RenderOptions struct {
	// Limit caps the number of rows; zero shows all.
	Limit int
	// ChangedOnly hides stable functions.
	ChangedOnly bool
}

// Render writes the comparison as a styled table.
func Render(w io.Writer, r *Report, opts RenderOptions) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("PipelineScope diff: %s -> %s", r.RunA, r.RunB)))
	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("═", 72)))

	basis := "observed total time"
	if r.Projected {
		basis = "projected total time"
	}
	counts := r.Counts()
	fmt.Fprintf(w, "Compared on %s (±%.0f%%): %d regressed, %d improved, %d new, %d removed, %d stable\n\n",
		basis, ChangeThresholdPercent,
		counts[StatusRegressed], counts[StatusImproved], counts[StatusNew], counts[StatusRemoved], counts[StatusStable])

	entries := r.Entries
	if opts.ChangedOnly {
		entries = r.Changed()
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No differences."))
		return
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			e.Identity.Name,
			e.Identity.Module,
			statusLabel(e.Status),
			signedInt(e.DeltaCalls),
			signedMs(e.DeltaTotalMs),
			projectedCell(r.Projected, e.DeltaProjectedMs),
			changeCell(e),
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
		Headers("FUNCTION", "MODULE", "STATUS", "Δ CALLS", "Δ TOTAL", "Δ PROJECTED", "CHANGE").
		Rows(rows...)

	fmt.Fprintln(w, t)
}

func statusLabel(s Status) string {
	switch s {
	case StatusRegressed:
		return regressedStyle.Render(string(s))
	case StatusImproved:
		return improvedStyle.Render(string(s))
	case StatusNew, StatusRemoved:
		return newStyle.Render(string(s))
	default:
		return string(s)
	}
}

func signedInt(n int64) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func signedMs(ms float64) string {
	return fmt.Sprintf("%+.2fms", ms)
}

func projectedCell(projected bool, ms float64) string {
	if !projected {
		return "-"
	}
	return signedMs(ms)
}

func changeCell(e Entry) string {
	switch {
	case e.Status == StatusNew || e.Status == StatusRemoved:
		return "-"
	case math.IsInf(e.ChangePercent, 0):
		return "+inf"
	default:
		return fmt.Sprintf("%+.1f%%", e.ChangePercent)
	}
}
