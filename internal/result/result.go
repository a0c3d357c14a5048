// Package result defines the finalized profiling document returned by the engine and
// the writers that persist it.
package result

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/coral-mesh/pipelinescope/internal/diag"
	pserrors "github.com/coral-mesh/pipelinescope/internal/errors"
	"github.com/coral-mesh/pipelinescope/internal/extrapolation"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Result is the immutable outcome of one profiling run.
type Result struct {
	Metadata          Metadata                    `json:"metadata"`
	FunctionStats     map[string]FunctionStat     `json:"function_stats"`
	ExtrapolatedStats map[string]ExtrapolatedStat `json:"extrapolated_stats,omitempty"`
	CallEdges         []EdgeStat                  `json:"call_edges"`
}

// Metadata describes the run as a whole.
type Metadata struct {
	RunID                  string       `json:"run_id" jsonschema:"description=Unique identifier of the run"`
	Version                string       `json:"version,omitempty"`
	GoVersion              string       `json:"go_version,omitempty"`
	StartTime              time.Time    `json:"start_time"`
	EndTime                time.Time    `json:"end_time"`
	ProfilingDurationMs    float64      `json:"profiling_duration_ms"`
	SampleSize             int          `json:"sample_size"`
	ExpectedSize           int          `json:"expected_size"`
	ScaleFactor            float64      `json:"scale_factor,omitempty"`
	TotalFunctionsTracked  int          `json:"total_functions_tracked"`
	ExtrapolationAvailable bool         `json:"extrapolation_available"`
	ExtrapolationError     string       `json:"extrapolation_error,omitempty"`
	CPUAvailable           bool         `json:"cpu_available"`
	GPUAvailable           bool         `json:"gpu_available"`
	ResourceSamples        int64        `json:"resource_samples"`
	SelfTimeClamps         int64        `json:"self_time_clamps"`
	DroppedEvents          int64        `json:"dropped_events"`
	DiscardedFrames        int64        `json:"discarded_frames"`
	IncompleteFrames       int64        `json:"incomplete_frames"`
	RejectedUpdates        int64        `json:"rejected_updates"`
	Diagnostics            []diag.Entry `json:"diagnostics,omitempty"`
}

// FunctionStat is the exported form of a function record.
type FunctionStat struct {
	Module        string     `json:"module"`
	Name          string     `json:"name"`
	CallCount     int64      `json:"call_count"`
	TotalTimeMs   float64    `json:"total_time_ms"`
	SelfTimeMs    float64    `json:"self_time_ms"`
	AvgTimeMs     float64    `json:"avg_time_ms"`
	CPUPercent    float64    `json:"cpu_percent"`
	MemoryMB      float64    `json:"memory_mb"`
	PeakMemoryMB  float64    `json:"peak_memory_mb"`
	MemoryDeltaMB float64    `json:"memory_delta_mb"`
	Samples       int64      `json:"samples"`
	FirstCall     *time.Time `json:"first_call,omitempty"`
	// Stdlib is set for standard library functions, decided from their source file.
	Stdlib bool `json:"stdlib,omitempty"`
	// GPU fields are absent when GPU monitoring was disabled or unavailable.
	GPUUtilization *float64 `json:"gpu_utilization,omitempty"`
	GPUMemoryMB    *float64 `json:"gpu_memory_mb,omitempty"`
}

// Identity returns the function identity of the stat.
func (f FunctionStat) Identity() stats.Identity {
	return stats.Identity{Module: f.Module, Name: f.Name}
}

// ExtrapolatedStat is the projection of a function to the expected workload size.
type ExtrapolatedStat struct {
	ExtrapolatedCallCount   int64   `json:"extrapolated_call_count"`
	ExtrapolatedTotalTimeMs float64 `json:"extrapolated_total_time_ms"`
	ExtrapolatedSelfTimeMs  float64 `json:"extrapolated_self_time_ms"`
	PercentageOfTotal       float64 `json:"percentage_of_total"`
}

// EdgeStat is an aggregated caller to callee relationship.
type EdgeStat struct {
	Caller      string  `json:"caller"`
	Callee      string  `json:"callee"`
	CallCount   int64   `json:"call_count"`
	TotalTimeMs float64 `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
}

// Input gathers everything Build needs from a finished run.
type Input struct {
	RunID        string
	Version      string
	GoVersion    string
	Start        time.Time
	End          time.Time
	SampleSize   int
	ExpectedSize int

	Snapshot stats.Snapshot

	CPUAvailable     bool
	GPUAvailable     bool
	ResourceSamples  int64
	DroppedEvents    int64
	DiscardedFrames  int64
	IncompleteFrames int64
	Diagnostics      []diag.Entry
}

// Build converts a frozen aggregator snapshot into a Result and runs extrapolation.
// Extrapolation failures, including panics, only mark extrapolation unavailable.
func Build(in Input) *Result {
	duration := in.End.Sub(in.Start)
	if duration < 0 {
		duration = 0
	}

	res := &Result{
		Metadata: Metadata{
			RunID:               in.RunID,
			Version:             in.Version,
			GoVersion:           in.GoVersion,
			StartTime:           in.Start,
			EndTime:             in.End,
			ProfilingDurationMs: float64(duration) / float64(time.Millisecond),
			SampleSize:          in.SampleSize,
			ExpectedSize:        in.ExpectedSize,
			CPUAvailable:        in.CPUAvailable,
			GPUAvailable:        in.GPUAvailable,
			ResourceSamples:     in.ResourceSamples,
			SelfTimeClamps:      in.Snapshot.SelfClamps,
			DroppedEvents:       in.DroppedEvents,
			DiscardedFrames:     in.DiscardedFrames,
			IncompleteFrames:    in.IncompleteFrames,
			RejectedUpdates:     in.Snapshot.Rejected,
			Diagnostics:         in.Diagnostics,
		},
		FunctionStats: make(map[string]FunctionStat, len(in.Snapshot.Records)),
		CallEdges:     make([]EdgeStat, 0, len(in.Snapshot.Edges)),
	}

	for _, r := range in.Snapshot.Records {
		res.FunctionStats[r.Identity.String()] = functionStat(r)
		if !r.Identity.IsIdle() {
			res.Metadata.TotalFunctionsTracked++
		}
	}

	for _, e := range in.Snapshot.Edges {
		edge := EdgeStat{
			Caller:      e.Caller.String(),
			Callee:      e.Callee.String(),
			CallCount:   e.CallCount,
			TotalTimeMs: e.TotalTimeMs(),
		}
		if e.CallCount > 0 {
			edge.AvgTimeMs = edge.TotalTimeMs / float64(e.CallCount)
		}
		res.CallEdges = append(res.CallEdges, edge)
	}

	projected, err := safeExtrapolate(in.Snapshot.Records, in.SampleSize, in.ExpectedSize)
	if err != nil {
		res.Metadata.ExtrapolationError = err.Error()
		return res
	}

	res.Metadata.ExtrapolationAvailable = true
	res.Metadata.ScaleFactor, _ = extrapolation.ScaleFactor(in.SampleSize, in.ExpectedSize)
	res.ExtrapolatedStats = make(map[string]ExtrapolatedStat, len(projected))
	for id, x := range projected {
		res.ExtrapolatedStats[id.String()] = ExtrapolatedStat{
			ExtrapolatedCallCount:   x.ExtrapolatedCallCount,
			ExtrapolatedTotalTimeMs: x.ExtrapolatedTotalTimeMs,
			ExtrapolatedSelfTimeMs:  x.ExtrapolatedSelfTimeMs,
			PercentageOfTotal:       x.PercentageOfTotal,
		}
	}
	return res
}

func safeExtrapolate(records []stats.Record, sample, expected int) (out map[stats.Identity]extrapolation.Record, err error) {
	defer pserrors.RecoverTo(&err, "extrapolation")
	return extrapolation.Extrapolate(records, sample, expected)
}

func functionStat(r stats.Record) FunctionStat {
	fs := FunctionStat{
		Module:         r.Identity.Module,
		Name:           r.Identity.Name,
		CallCount:      r.CallCount,
		TotalTimeMs:    r.TotalTimeMs(),
		SelfTimeMs:     r.SelfTimeMs(),
		AvgTimeMs:      r.AvgTimeMs(),
		CPUPercent:     r.CPUPercent,
		MemoryMB:       r.MemoryMB,
		PeakMemoryMB:   r.PeakMemoryMB,
		MemoryDeltaMB:  r.MemoryDeltaMB,
		Samples:        r.Samples,
		GPUUtilization: r.GPUUtilization,
		GPUMemoryMB:    r.GPUMemoryMB,
		Stdlib:         r.Stdlib,
	}
	if !r.FirstCall.IsZero() {
		first := r.FirstCall
		fs.FirstCall = &first
	}
	return fs
}

// Keys returns the function stat keys in sorted order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.FunctionStats))
	for k := range r.FunctionStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Extrapolated returns the projection for key when extrapolation was available.
func (r *Result) Extrapolated(key string) (ExtrapolatedStat, bool) {
	if r.ExtrapolatedStats == nil {
		return ExtrapolatedStat{}, false
	}
	x, ok := r.ExtrapolatedStats[key]
	return x, ok
}

// ErrInvalidDocument is returned when a document lacks required sections.
var ErrInvalidDocument = errors.New("invalid profile document")

// Validate checks the structural invariants of a loaded document.
func (r *Result) Validate() error {
	if r.FunctionStats == nil {
		return fmt.Errorf("%w: missing function_stats", ErrInvalidDocument)
	}
	for key, fs := range r.FunctionStats {
		if fs.CallCount < 0 {
			return fmt.Errorf("%w: %s has negative call_count", ErrInvalidDocument, key)
		}
		if fs.SelfTimeMs < 0 || fs.SelfTimeMs > fs.TotalTimeMs+1e-9 {
			return fmt.Errorf("%w: %s violates total >= self >= 0", ErrInvalidDocument, key)
		}
	}
	return nil
}
