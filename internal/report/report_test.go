package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

const (
	etl   = "github.com/acme/etl"
	model = "github.com/acme/model"
)

func ident(module, name string) stats.Identity {
	return stats.Identity{Module: module, Name: name}
}

// testResult builds a run where train dominates, extract is moderate, and validate is tiny.
func testResult(t *testing.T, sample int) *result.Result {
	t.Helper()
	agg := stats.NewAggregator()
	commit := func(id stats.Identity, calls int, each, self time.Duration) {
		for i := 0; i < calls; i++ {
			agg.Commit(stats.Completion{
				Identity: id,
				Elapsed:  each,
				Self:     self,
				Stdlib:   id.Module == "encoding/json",
			})
		}
	}
	commit(ident(model, "train"), 2, 300*time.Millisecond, 300*time.Millisecond)
	commit(ident(etl, "extract"), 10, 10*time.Millisecond, 10*time.Millisecond)
	commit(ident(etl, "validate"), 1, 500*time.Microsecond, 500*time.Microsecond)
	commit(ident("encoding/json", "Marshal"), 4, 20*time.Millisecond, 20*time.Millisecond)
	commit(ident(etl, "<generated>"), 1, time.Millisecond, time.Millisecond)
	cpu := 10.0
	agg.RecordResourceSample(stats.IdleIdentity, stats.ResourceSample{CPUPercent: &cpu})
	agg.Freeze()

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return result.Build(result.Input{
		RunID:        "run-report",
		Start:        start,
		End:          start.Add(2 * time.Second),
		SampleSize:   sample,
		ExpectedSize: 1000,
		Snapshot:     agg.Snapshot(),
	})
}

func keys(fns []Function) []string {
	out := make([]string, len(fns))
	for i, fn := range fns {
		out[i] = fn.Identity.Name
	}
	return out
}

func TestAnalyzer_FunctionsRankedAndFiltered(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{MinTimeThresholdMs: 1.0, MinTimePercentage: 0.5})

	assert.Equal(t, []string{"train", "extract", "validate"}, keys(a.All()))

	fns, err := a.Functions()
	require.NoError(t, err)
	// validate is below 1ms total.
	assert.Equal(t, []string{"train", "extract"}, keys(fns))

	train := fns[0]
	assert.True(t, train.Projected)
	assert.Equal(t, int64(20), train.ProjectedCalls)
	assert.InDelta(t, 6000.0, train.ProjectedSelfTimeMs, 1e-6)
	// 6000 of 7815 projected self ms across all non-idle records.
	assert.InDelta(t, 76.78, train.Percentage, 0.01)
}

func TestAnalyzer_PercentageThreshold(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{MinTimePercentage: 50})

	fns, err := a.Functions()
	require.NoError(t, err)
	assert.Equal(t, []string{"train"}, keys(fns))
}

func TestAnalyzer_IncludeStdlib(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{IncludeStdlib: true})
	assert.Contains(t, keys(a.All()), "Marshal")
}

func TestAnalyzer_DotlessUserModuleIsReported(t *testing.T) {
	agg := stats.NewAggregator()
	agg.Commit(stats.Completion{Identity: ident("etl/pipeline", "Extract"), Elapsed: 40 * time.Millisecond, Self: 40 * time.Millisecond})
	agg.Commit(stats.Completion{Identity: ident("etl", "main"), Elapsed: 50 * time.Millisecond, Self: 10 * time.Millisecond})
	agg.Commit(stats.Completion{Identity: ident("strings", "Split"), Elapsed: time.Millisecond, Self: time.Millisecond, Stdlib: true})
	agg.Freeze()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	res := result.Build(result.Input{RunID: "run-dotless", Start: start, End: start.Add(time.Second), Snapshot: agg.Snapshot()})

	a := NewAnalyzer(res, Options{})
	names := keys(a.All())
	assert.Contains(t, names, "Extract")
	assert.Contains(t, names, "main")
	assert.NotContains(t, names, "Split")

	a = NewAnalyzer(res, Options{IncludeStdlib: true})
	assert.Contains(t, keys(a.All()), "Split")
}

func TestAnalyzer_Hotspots(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{})

	top, err := a.Hotspots(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"train"}, keys(top))

	all, err := a.Hotspots(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAnalyzer_ByModule(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{})

	modules := a.ByModule()
	require.Len(t, modules, 2)
	assert.Equal(t, model, modules[0].Name)
	assert.Equal(t, 1, modules[0].FunctionCount)
	assert.Equal(t, etl, modules[1].Name)
	assert.Equal(t, 2, modules[1].FunctionCount)
	assert.Equal(t, int64(11), modules[1].TotalCalls)
	assert.InDelta(t, 100.0, modules[0].Percentage+modules[1].Percentage, 1e-9)
}

func TestAnalyzer_WithoutExtrapolation(t *testing.T) {
	a := NewAnalyzer(testResult(t, 0), Options{})

	fns := a.All()
	require.Len(t, fns, 3)
	assert.Equal(t, "train", fns[0].Identity.Name)
	assert.False(t, fns[0].Projected)
	assert.Zero(t, fns[0].ProjectedSelfTimeMs)

	var total float64
	for _, fn := range fns {
		total += fn.Percentage
	}
	assert.InDelta(t, 100.0, total, 1e-9)
}

func TestFilter(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{})

	f, err := NewFilter(`module.startsWith("github.com/acme/etl") && call_count > 5`)
	require.NoError(t, err)
	assert.Contains(t, f.String(), "call_count")

	a.opts.Filter = f
	fns, err := a.Functions()
	require.NoError(t, err)
	assert.Equal(t, []string{"extract"}, keys(fns))
}

func TestFilter_Invalid(t *testing.T) {
	_, err := NewFilter(`call_count >`)
	assert.ErrorContains(t, err, "invalid filter")

	_, err = NewFilter(`call_count + 1`)
	assert.ErrorContains(t, err, "must evaluate to bool")

	_, err = NewFilter(`unknown_field > 1`)
	assert.Error(t, err)
}

func TestFormatDurationMs(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{0, "0ms"},
		{999.9, "999ms"},
		{1000, "1s"},
		{65_000, "1m 5s"},
		{3_600_000, "1h"},
		{90_061_000, "1d 1h 1m 1s"},
		{-5, "0ms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDurationMs(tt.ms), "ms=%v", tt.ms)
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1,000", FormatCount(1000))
	assert.Equal(t, "1,000,000", FormatCount(1_000_000))
	assert.Equal(t, "-12,345", FormatCount(-12345))
}

func TestRenderTerminal(t *testing.T) {
	res := testResult(t, 100)
	a := NewAnalyzer(res, Options{})

	var buf bytes.Buffer
	RenderSummary(&buf, "PipelineScope", res.Metadata)
	fns, err := a.Functions()
	require.NoError(t, err)
	RenderFunctions(&buf, fns)
	RenderModules(&buf, a.ByModule())

	out := buf.String()
	assert.Contains(t, out, "run-report")
	assert.Contains(t, out, "train")
	assert.Contains(t, out, "extract")
	assert.Contains(t, out, "FUNCTION")
	assert.Contains(t, out, model)

	buf.Reset()
	RenderFunctions(&buf, nil)
	assert.Contains(t, buf.String(), "No functions")
}

func TestRenderSummary_Unavailable(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, "PipelineScope", testResult(t, 0).Metadata)
	assert.Contains(t, buf.String(), "extrapolation unavailable")
}

func TestWriteHTML(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{MinTimeThresholdMs: 1})
	path := filepath.Join(t.TempDir(), "summary.html")

	require.NoError(t, WriteHTML(path, a, "ETL <nightly>", time.Unix(0, 0).UTC(), zerolog.Nop()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "ETL &lt;nightly&gt;")
	assert.Contains(t, html, "train")
	assert.Contains(t, html, "run-report")
	assert.Contains(t, html, "Optimization prompt")
	assert.NotContains(t, html, "GPU memory")
}

func TestOptimizationPrompt(t *testing.T) {
	a := NewAnalyzer(testResult(t, 100), Options{})
	top, err := a.Hotspots(1)
	require.NoError(t, err)

	prompt := OptimizationPrompt(&top[0])
	assert.Contains(t, prompt, "- Function: train")
	assert.Contains(t, prompt, "- Package: "+model)
	assert.Contains(t, prompt, "projected")

	blank := OptimizationPrompt(nil)
	assert.Contains(t, blank, "[e.g. (*Loader).Load]")
}

func TestRenderMarkdown(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	out, err := RenderMarkdown("# Title\n\nSome plain text.", 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, strings.Join(strings.Fields(out), " "), "Some plain text")
}
