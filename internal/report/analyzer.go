// Package report turns a profile document into ranked hotspots, module rollups, and
// terminal, HTML, and prompt renderings.
package report

import (
	"sort"
	"strings"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/safe"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Function is one reportable function with observed and projected metrics.
type Function struct {
	Key      string
	Identity stats.Identity

	CallCount   int64
	TotalTimeMs float64
	SelfTimeMs  float64
	AvgTimeMs   float64

	// Projected is false when the run had no extrapolation; projected fields are zero.
	Projected           bool
	ProjectedCalls      int64
	ProjectedTimeMs     float64
	ProjectedSelfTimeMs float64
	// Percentage is the share of projected self time, or of observed self time when
	// extrapolation was unavailable.
	Percentage float64

	CPUPercent     float64
	PeakMemoryMB   float64
	MemoryDeltaMB  float64
	GPUUtilization *float64
	GPUMemoryMB    *float64
}

// rankTimeMs is the value functions are ranked by.
func (f Function) rankTimeMs() float64 {
	if f.Projected {
		return f.ProjectedSelfTimeMs
	}
	return f.SelfTimeMs
}

// Module is the rollup of every reportable function declared in one module.
type Module struct {
	Name            string
	FunctionCount   int
	TotalCalls      int64
	TotalTimeMs     float64
	ProjectedTimeMs float64
	Percentage      float64
}

// Options tunes what the analyzer reports.
type Options struct {
	// MinTimeThresholdMs drops functions whose observed total time is lower.
	MinTimeThresholdMs float64
	// MinTimePercentage drops functions whose percentage of total is lower.
	MinTimePercentage float64
	// IncludeStdlib keeps standard library functions recorded with collapsing disabled.
	IncludeStdlib bool
	// Filter is an optional predicate applied after the thresholds.
	Filter *Filter
}

// Analyzer derives report views from a result.
type Analyzer struct {
	res  *result.Result
	opts Options
	all  []Function
}

// NewAnalyzer prepares the reportable functions of res.
func NewAnalyzer(res *result.Result, opts Options) *Analyzer {
	a := &Analyzer{res: res, opts: opts}
	a.all = a.collect()
	return a
}

// Result returns the analyzed document.
func (a *Analyzer) Result() *result.Result {
	return a.res
}

// include hides pseudo entries and, unless asked otherwise, functions the tracker
// flagged as standard library when they were recorded.
func (a *Analyzer) include(id stats.Identity, fs result.FunctionStat) bool {
	name := strings.TrimSpace(id.Name)
	if name == "" || strings.HasPrefix(name, "<") || id.IsIdle() {
		return false
	}
	if !a.opts.IncludeStdlib && fs.Stdlib {
		return false
	}
	return true
}

func (a *Analyzer) collect() []Function {
	var out []Function
	var totalSelf float64
	for _, key := range a.res.Keys() {
		fs := a.res.FunctionStats[key]
		id := fs.Identity()
		if !a.include(id, fs) {
			continue
		}

		fn := Function{
			Key:            key,
			Identity:       id,
			CallCount:      fs.CallCount,
			TotalTimeMs:    fs.TotalTimeMs,
			SelfTimeMs:     fs.SelfTimeMs,
			AvgTimeMs:      fs.AvgTimeMs,
			CPUPercent:     fs.CPUPercent,
			PeakMemoryMB:   fs.PeakMemoryMB,
			MemoryDeltaMB:  fs.MemoryDeltaMB,
			GPUUtilization: fs.GPUUtilization,
			GPUMemoryMB:    fs.GPUMemoryMB,
		}
		if x, ok := a.res.Extrapolated(key); ok {
			fn.Projected = true
			fn.ProjectedCalls = x.ExtrapolatedCallCount
			fn.ProjectedTimeMs = x.ExtrapolatedTotalTimeMs
			fn.ProjectedSelfTimeMs = x.ExtrapolatedSelfTimeMs
			fn.Percentage = x.PercentageOfTotal
		} else {
			totalSelf += fs.SelfTimeMs
		}
		out = append(out, fn)
	}

	for i := range out {
		if !out[i].Projected {
			out[i].Percentage = safe.Percent(out[i].SelfTimeMs, totalSelf)
		}
	}

	sortFunctions(out)
	return out
}

func sortFunctions(fns []Function) {
	sort.SliceStable(fns, func(i, j int) bool {
		ri, rj := fns[i].rankTimeMs(), fns[j].rankTimeMs()
		if ri != rj {
			return ri > rj
		}
		return fns[i].Key < fns[j].Key
	})
}

// All returns every reportable function, ignoring thresholds and filters.
func (a *Analyzer) All() []Function {
	return append([]Function(nil), a.all...)
}

// Functions returns the reportable functions that pass the thresholds and filter,
// ranked by projected self time.
func (a *Analyzer) Functions() ([]Function, error) {
	out := make([]Function, 0, len(a.all))
	for _, fn := range a.all {
		if fn.TotalTimeMs < a.opts.MinTimeThresholdMs {
			continue
		}
		if fn.Percentage < a.opts.MinTimePercentage {
			continue
		}
		if a.opts.Filter != nil {
			ok, err := a.opts.Filter.Match(fn)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, fn)
	}
	return out, nil
}

// Hotspots returns the top n functions of Functions.
func (a *Analyzer) Hotspots(n int) ([]Function, error) {
	fns, err := a.Functions()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(fns) > n {
		fns = fns[:n]
	}
	return fns, nil
}

// ByModule aggregates every reportable function by module, largest projected time first.
func (a *Analyzer) ByModule() []Module {
	index := make(map[string]*Module)
	var totalProjected float64
	for _, fn := range a.all {
		m, ok := index[fn.Identity.Module]
		if !ok {
			m = &Module{Name: fn.Identity.Module}
			index[fn.Identity.Module] = m
		}
		m.FunctionCount++
		m.TotalCalls += fn.CallCount
		m.TotalTimeMs += fn.TotalTimeMs
		projected := fn.ProjectedTimeMs
		if !fn.Projected {
			projected = fn.TotalTimeMs
		}
		m.ProjectedTimeMs += projected
		totalProjected += projected
	}

	out := make([]Module, 0, len(index))
	for _, m := range index {
		m.Percentage = safe.Percent(m.ProjectedTimeMs, totalProjected)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectedTimeMs != out[j].ProjectedTimeMs {
			return out[i].ProjectedTimeMs > out[j].ProjectedTimeMs
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HasGPUData reports whether any reportable function carries GPU metrics.
func (a *Analyzer) HasGPUData() bool {
	for _, fn := range a.all {
		if fn.GPUUtilization != nil || fn.GPUMemoryMB != nil {
			return true
		}
	}
	return false
}
