package stats

import "time"

// Record is the cumulative aggregate for one identity over the whole run.
type Record struct {
	Identity Identity
	// Stdlib marks standard library functions recorded while collapsing was off.
	Stdlib bool

	CallCount int64
	TotalTime time.Duration
	SelfTime  time.Duration
	FirstCall time.Time

	// Resource attribution. CPUPercent and MemoryMB are running means over Samples.
	Samples       int64
	CPUPercent    float64
	MemoryMB      float64
	PeakMemoryMB  float64
	MemoryDeltaMB float64

	// GPU fields are nil when the GPU was not measured for this identity.
	GPUUtilization *float64
	GPUMemoryMB    *float64
}

// TotalTimeMs returns the total time in milliseconds.
func (r Record) TotalTimeMs() float64 {
	return durationMs(r.TotalTime)
}

// SelfTimeMs returns the self time in milliseconds.
func (r Record) SelfTimeMs() float64 {
	return durationMs(r.SelfTime)
}

// AvgTimeMs returns the mean total time per completed call.
func (r Record) AvgTimeMs() float64 {
	if r.CallCount == 0 {
		return 0
	}
	return r.TotalTimeMs() / float64(r.CallCount)
}

func (r Record) clone() Record {
	out := r
	if r.GPUUtilization != nil {
		v := *r.GPUUtilization
		out.GPUUtilization = &v
	}
	if r.GPUMemoryMB != nil {
		v := *r.GPUMemoryMB
		out.GPUMemoryMB = &v
	}
	return out
}

// Edge accumulates calls from one tracked caller to one tracked callee.
type Edge struct {
	Caller    Identity
	Callee    Identity
	CallCount int64
	TotalTime time.Duration
}

// TotalTimeMs returns the edge's total time in milliseconds.
func (e Edge) TotalTimeMs() float64 {
	return durationMs(e.TotalTime)
}

type edgeKey struct {
	caller Identity
	callee Identity
}

// ResourceSample is one sampler reading attributed to an identity.
// Nil pointers mean the metric was not measured.
type ResourceSample struct {
	CPUPercent     *float64
	MemoryMB       *float64
	GPUUtilization *float64
	GPUMemoryMB    *float64
}

// Completion describes one finished invocation as committed by the call stack tracker.
type Completion struct {
	Identity Identity
	// Caller is the nearest tracked ancestor; zero when the frame was a root.
	Caller  Identity
	Elapsed time.Duration
	Self    time.Duration
	At      time.Time
	// MemoryDeltaMB is nil when either the entry or exit snapshot was missing.
	MemoryDeltaMB *float64
	Stdlib        bool
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
