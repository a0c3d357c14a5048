// Package diff compares two profiling runs function by function.
package diff

import (
	"math"
	"sort"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Status classifies how a function changed between two runs.
type Status string

const (
	StatusNew       Status = "new"
	StatusRemoved   Status = "removed"
	StatusImproved  Status = "improved"
	StatusRegressed Status = "regressed"
	StatusStable    Status = "stable"
)

// ChangeThresholdPercent is the relative change beyond which a function is reported
// as improved or regressed.
const ChangeThresholdPercent = 10.0

// Side holds one run's metrics for a function. Present is false when the run has no
// record for it; all metrics are then zero.
type Side struct {
	Present         bool    `json:"present"`
	CallCount       int64   `json:"call_count"`
	TotalTimeMs     float64 `json:"total_time_ms"`
	ProjectedTimeMs float64 `json:"extrapolated_total_time_ms"`
}

// Entry is the comparison of one function.
type Entry struct {
	Key      string         `json:"key"`
	Identity stats.Identity `json:"-"`
	A        Side           `json:"a"`
	B        Side           `json:"b"`

	DeltaCalls       int64   `json:"delta_call_count"`
	DeltaTotalMs     float64 `json:"delta_total_time_ms"`
	DeltaProjectedMs float64 `json:"delta_extrapolated_total_time_ms"`
	// ChangePercent is the relative change of the compared metric; ±Inf when it grew from zero.
	ChangePercent float64 `json:"-"`
	Status        Status  `json:"status"`
}

// Report is the comparison of run B against run A.
type Report struct {
	RunA string `json:"run_a"`
	RunB string `json:"run_b"`
	// Projected is true when both runs carried extrapolation and statuses are based
	// on projected time.
	Projected bool    `json:"projected"`
	Entries   []Entry `json:"entries"`
}

// Compare returns B − A for every function present in either run.
func Compare(a, b *result.Result) *Report {
	rep := &Report{
		RunA:      a.Metadata.RunID,
		RunB:      b.Metadata.RunID,
		Projected: a.Metadata.ExtrapolationAvailable && b.Metadata.ExtrapolationAvailable,
	}

	keys := make(map[string]stats.Identity)
	for _, r := range []*result.Result{a, b} {
		for key, fs := range r.FunctionStats {
			id := fs.Identity()
			if id.IsIdle() {
				continue
			}
			keys[key] = id
		}
	}

	rep.Entries = make([]Entry, 0, len(keys))
	for key, id := range keys {
		e := Entry{Key: key, Identity: id, A: side(a, key), B: side(b, key)}
		e.compute(rep.Projected)
		rep.Entries = append(rep.Entries, e)
	}
	sortEntries(rep.Entries, rep.Projected)
	return rep
}

func side(r *result.Result, key string) Side {
	fs, ok := r.FunctionStats[key]
	if !ok {
		return Side{}
	}
	s := Side{Present: true, CallCount: fs.CallCount, TotalTimeMs: fs.TotalTimeMs}
	if x, ok := r.Extrapolated(key); ok {
		s.ProjectedTimeMs = x.ExtrapolatedTotalTimeMs
	}
	return s
}

func (e *Entry) compute(projected bool) {
	e.DeltaCalls = e.B.CallCount - e.A.CallCount
	e.DeltaTotalMs = e.B.TotalTimeMs - e.A.TotalTimeMs
	e.DeltaProjectedMs = e.B.ProjectedTimeMs - e.A.ProjectedTimeMs

	from, to := e.A.TotalTimeMs, e.B.TotalTimeMs
	if projected {
		from, to = e.A.ProjectedTimeMs, e.B.ProjectedTimeMs
	}
	e.ChangePercent = changePercent(from, to)

	switch {
	case !e.A.Present:
		e.Status = StatusNew
	case !e.B.Present:
		e.Status = StatusRemoved
	case e.ChangePercent <= -ChangeThresholdPercent:
		e.Status = StatusImproved
	case e.ChangePercent >= ChangeThresholdPercent:
		e.Status = StatusRegressed
	default:
		e.Status = StatusStable
	}
}

func changePercent(from, to float64) float64 {
	switch {
	case from == to:
		return 0
	case from == 0:
		return math.Inf(1)
	default:
		return (to - from) / from * 100
	}
}

func (e Entry) magnitude(projected bool) float64 {
	if projected {
		return math.Abs(e.DeltaProjectedMs)
	}
	return math.Abs(e.DeltaTotalMs)
}

// sortEntries orders by absolute change of the compared metric, largest first.
func sortEntries(entries []Entry, projected bool) {
	sort.Slice(entries, func(i, j int) bool {
		mi, mj := entries[i].magnitude(projected), entries[j].magnitude(projected)
		if mi != mj {
			return mi > mj
		}
		return entries[i].Key < entries[j].Key
	})
}

// Negate returns the comparison of A against B. Compare(a, b).Negate() equals
// Compare(b, a).
func (r *Report) Negate() *Report {
	out := &Report{RunA: r.RunB, RunB: r.RunA, Projected: r.Projected}
	out.Entries = make([]Entry, len(r.Entries))
	for i, e := range r.Entries {
		n := Entry{Key: e.Key, Identity: e.Identity, A: e.B, B: e.A}
		n.compute(r.Projected)
		out.Entries[i] = n
	}
	sortEntries(out.Entries, out.Projected)
	return out
}

// Counts tallies entries by status.
func (r *Report) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, e := range r.Entries {
		out[e.Status]++
	}
	return out
}

// Changed returns the entries whose status is not stable.
func (r *Report) Changed() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status != StatusStable {
			out = append(out, e)
		}
	}
	return out
}
