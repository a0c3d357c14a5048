package stats

import (
	"sort"
	"sync"
	"time"
)

// Aggregator maps identities to cumulative records. It is safe for concurrent use by
// any number of call stack trackers and the resource sampler. All merges are additive.
type Aggregator struct {
	mu      sync.Mutex
	records map[Identity]*Record
	edges   map[edgeKey]*Edge
	frozen  bool

	selfClamps int64
	rejected   int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		records: make(map[Identity]*Record),
		edges:   make(map[edgeKey]*Edge),
	}
}

// record returns the record for id, creating it lazily. Caller holds mu.
func (a *Aggregator) record(id Identity) *Record {
	r, ok := a.records[id]
	if !ok {
		r = &Record{Identity: id}
		a.records[id] = r
	}
	return r
}

// RecordInvocation merges one completed invocation. Negative self time is clamped to
// zero and counted; self time never exceeds elapsed.
func (a *Aggregator) RecordInvocation(id Identity, elapsed, self time.Duration) bool {
	return a.Commit(Completion{Identity: id, Elapsed: elapsed, Self: self})
}

// Commit merges a completed invocation together with its call edge and memory delta
// under a single critical section. It returns false when the aggregator is frozen.
func (a *Aggregator) Commit(c Completion) bool {
	if c.Elapsed < 0 {
		c.Elapsed = 0
	}
	clamped := false
	if c.Self < 0 {
		c.Self = 0
		clamped = true
	}
	if c.Self > c.Elapsed {
		c.Self = c.Elapsed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		a.rejected++
		return false
	}
	if clamped {
		a.selfClamps++
	}

	r := a.record(c.Identity)
	r.CallCount++
	r.Stdlib = r.Stdlib || c.Stdlib
	r.TotalTime += c.Elapsed
	r.SelfTime += c.Self
	if r.FirstCall.IsZero() && !c.At.IsZero() {
		r.FirstCall = c.At
	}
	if c.MemoryDeltaMB != nil {
		r.MemoryDeltaMB += *c.MemoryDeltaMB
	}

	if !c.Caller.IsZero() {
		key := edgeKey{caller: c.Caller, callee: c.Identity}
		e, ok := a.edges[key]
		if !ok {
			e = &Edge{Caller: c.Caller, Callee: c.Identity}
			a.edges[key] = e
		}
		e.CallCount++
		e.TotalTime += c.Elapsed
	}
	return true
}

// RecordResourceSample folds one sample into the running means for id.
func (a *Aggregator) RecordResourceSample(id Identity, s ResourceSample) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		a.rejected++
		return false
	}

	r := a.record(id)
	r.Samples++
	n := float64(r.Samples)
	if s.CPUPercent != nil {
		r.CPUPercent += (*s.CPUPercent - r.CPUPercent) / n
	}
	if s.MemoryMB != nil {
		r.MemoryMB += (*s.MemoryMB - r.MemoryMB) / n
		if *s.MemoryMB > r.PeakMemoryMB {
			r.PeakMemoryMB = *s.MemoryMB
		}
	}
	if s.GPUUtilization != nil {
		r.GPUUtilization = runningMean(r.GPUUtilization, *s.GPUUtilization, n)
	}
	if s.GPUMemoryMB != nil {
		r.GPUMemoryMB = runningMean(r.GPUMemoryMB, *s.GPUMemoryMB, n)
	}
	return true
}

func runningMean(cur *float64, x, n float64) *float64 {
	if cur == nil {
		v := x
		return &v
	}
	v := *cur + (x-*cur)/n
	return &v
}

// Freeze rejects all further mutations. Calling it more than once is harmless.
func (a *Aggregator) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (a *Aggregator) Frozen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frozen
}

// Len returns the number of distinct identities recorded so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Snapshot is an immutable copy of the aggregator state.
type Snapshot struct {
	Records    []Record
	Edges      []Edge
	SelfClamps int64
	Rejected   int64
}

// Snapshot copies every record and edge. Later mutations never show up in the copy.
// Records and edges are sorted by identity string for deterministic output.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	records := make([]Record, 0, len(a.records))
	for _, r := range a.records {
		records = append(records, r.clone())
	}
	edges := make([]Edge, 0, len(a.edges))
	for _, e := range a.edges {
		edges = append(edges, *e)
	}
	snap := Snapshot{SelfClamps: a.selfClamps, Rejected: a.rejected}
	a.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Identity.String() < records[j].Identity.String()
	})
	sort.Slice(edges, func(i, j int) bool {
		ci, cj := edges[i].Caller.String(), edges[j].Caller.String()
		if ci != cj {
			return ci < cj
		}
		return edges[i].Callee.String() < edges[j].Callee.String()
	})
	snap.Records = records
	snap.Edges = edges
	return snap
}

// Lookup returns the record for id from the snapshot.
func (s Snapshot) Lookup(id Identity) (Record, bool) {
	for _, r := range s.Records {
		if r.Identity == id {
			return r, true
		}
	}
	return Record{}, false
}
