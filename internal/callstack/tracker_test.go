package callstack

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/diag"
	"github.com/coral-mesh/pipelinescope/internal/filter"
	"github.com/coral-mesh/pipelinescope/internal/resource"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

const etl = "github.com/acme/etl"

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func fn(name string) filter.Candidate {
	return filter.Candidate{Identity: stats.Identity{Module: etl, Name: name}}
}

func id(name string) stats.Identity {
	return stats.Identity{Module: etl, Name: name}
}

type fixture struct {
	agg     *stats.Aggregator
	diags   *diag.Diagnostics
	latest  *resource.Latest
	tracker *Tracker
}

func newFixture(t *testing.T, cfg filter.Config) *fixture {
	t.Helper()
	f := &fixture{
		agg:    stats.NewAggregator(),
		diags:  diag.New(zerolog.Nop()),
		latest: &resource.Latest{},
	}
	f.tracker = NewTracker(f.agg, filter.New(cfg), f.latest, f.diags, zerolog.Nop())
	return f
}

func (f *fixture) lookup(t *testing.T, name string) stats.Record {
	t.Helper()
	rec, ok := f.agg.Snapshot().Lookup(id(name))
	require.True(t, ok, "no record for %s", name)
	return rec
}

func TestTracker_LinearPipeline(t *testing.T) {
	f := newFixture(t, filter.Config{CollapseStdlib: true})
	th := f.tracker.NewThread("main")

	run := f.tracker.Enter(th, fn("run_pipeline"), at(0))
	ex := f.tracker.Enter(th, fn("extract"), at(10))
	f.tracker.Exit(th, ex, at(30))
	tr := f.tracker.Enter(th, fn("transform"), at(30))
	f.tracker.Exit(th, tr, at(60))
	ld := f.tracker.Enter(th, fn("load"), at(60))
	f.tracker.Exit(th, ld, at(90))
	f.tracker.Exit(th, run, at(100))

	assert.Equal(t, Empty, th.State())
	assert.Equal(t, 4, f.agg.Len())

	for _, name := range []string{"extract", "transform", "load"} {
		rec := f.lookup(t, name)
		assert.Equal(t, int64(1), rec.CallCount)
		assert.Equal(t, rec.TotalTime, rec.SelfTime)
	}

	root := f.lookup(t, "run_pipeline")
	assert.Equal(t, 100*time.Millisecond, root.TotalTime)
	assert.Equal(t, 20*time.Millisecond, root.SelfTime)
	assert.Equal(t, at(0), root.FirstCall)

	var childSum time.Duration
	for _, name := range []string{"extract", "transform", "load"} {
		childSum += f.lookup(t, name).TotalTime
	}
	assert.GreaterOrEqual(t, root.TotalTime, childSum)

	edges := f.agg.Snapshot().Edges
	require.Len(t, edges, 3)
	for _, e := range edges {
		assert.Equal(t, id("run_pipeline"), e.Caller)
		assert.Equal(t, int64(1), e.CallCount)
	}
}

func TestTracker_RepeatedCallsAccumulate(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	for i := 0; i < 10; i++ {
		start := i * 10
		h := f.tracker.Enter(th, fn("extract"), at(start))
		f.tracker.Exit(th, h, at(start+5))
	}

	rec := f.lookup(t, "extract")
	assert.Equal(t, int64(10), rec.CallCount)
	assert.Equal(t, 50*time.Millisecond, rec.TotalTime)
	assert.Equal(t, at(0), rec.FirstCall)
	assert.InDelta(t, 5.0, rec.AvgTimeMs(), 1e-9)
}

func TestTracker_RecursionSharesIdentity(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	outer := f.tracker.Enter(th, fn("walk"), at(0))
	inner := f.tracker.Enter(th, fn("walk"), at(10))
	assert.Equal(t, 2, th.Depth())
	f.tracker.Exit(th, inner, at(60))
	f.tracker.Exit(th, outer, at(100))

	rec := f.lookup(t, "walk")
	assert.Equal(t, int64(2), rec.CallCount)
	assert.Equal(t, 150*time.Millisecond, rec.TotalTime)
	assert.Equal(t, 100*time.Millisecond, rec.SelfTime)

	edges := f.agg.Snapshot().Edges
	require.Len(t, edges, 1)
	assert.Equal(t, id("walk"), edges[0].Caller)
	assert.Equal(t, id("walk"), edges[0].Callee)
}

func TestTracker_CollapseFoldsSubtree(t *testing.T) {
	f := newFixture(t, filter.Config{CollapseStdlib: true})
	th := f.tracker.NewThread("main")

	parent := f.tracker.Enter(th, fn("encode"), at(0))
	marshal := f.tracker.Enter(th, filter.Candidate{Identity: stats.Identity{Module: "encoding/json", Name: "Marshal"}}, at(10))
	require.True(t, marshal.Collapsed())
	// A user callback invoked from inside the collapsed call is folded too.
	cb := f.tracker.Enter(th, fn("MarshalJSON"), at(15))
	require.True(t, cb.Collapsed())
	assert.Equal(t, 1, th.Depth())
	f.tracker.Exit(th, cb, at(35))
	f.tracker.Exit(th, marshal, at(40))

	after := f.tracker.Enter(th, fn("write"), at(40))
	require.True(t, after.Tracked())
	f.tracker.Exit(th, after, at(50))
	f.tracker.Exit(th, parent, at(100))

	snap := f.agg.Snapshot()
	assert.Len(t, snap.Records, 2)
	_, ok := snap.Lookup(stats.Identity{Module: "encoding/json", Name: "Marshal"})
	assert.False(t, ok)
	_, ok = snap.Lookup(id("MarshalJSON"))
	assert.False(t, ok)

	rec := f.lookup(t, "encode")
	assert.Equal(t, 100*time.Millisecond, rec.TotalTime)
	assert.Equal(t, 90*time.Millisecond, rec.SelfTime)
}

func TestTracker_RecordsStdlibFlag(t *testing.T) {
	f := newFixture(t, filter.Config{CollapseStdlib: false})
	th := f.tracker.NewThread("main")

	user := filter.Candidate{Identity: stats.Identity{Module: "etl/pipeline", Name: "Extract"}, File: "/home/dev/etl/pipeline/extract.go"}
	split := filter.Candidate{Identity: stats.Identity{Module: "strings", Name: "Split"}}

	h := f.tracker.Enter(th, user, at(0))
	require.True(t, h.Tracked())
	inner := f.tracker.Enter(th, split, at(5))
	require.True(t, inner.Tracked())
	f.tracker.Exit(th, inner, at(8))
	f.tracker.Exit(th, h, at(20))

	snap := f.agg.Snapshot()
	rec, ok := snap.Lookup(user.Identity)
	require.True(t, ok)
	assert.False(t, rec.Stdlib)
	rec, ok = snap.Lookup(split.Identity)
	require.True(t, ok)
	assert.True(t, rec.Stdlib)
}

func TestTracker_IgnoredTimeGoesToAncestor(t *testing.T) {
	f := newFixture(t, filter.Config{IgnoreModules: []string{"github.com/vendored/"}})
	th := f.tracker.NewThread("main")

	parent := f.tracker.Enter(th, fn("run_pipeline"), at(0))
	lib := f.tracker.Enter(th, filter.Candidate{Identity: stats.Identity{Module: "github.com/vendored/retry", Name: "Do"}}, at(10))
	assert.False(t, lib.Tracked())
	assert.False(t, lib.Collapsed())

	// Descendants of an ignored call are evaluated on their own and attach to the
	// nearest tracked ancestor.
	child := f.tracker.Enter(th, fn("extract"), at(20))
	f.tracker.Exit(th, child, at(50))
	f.tracker.Exit(th, lib, at(60))
	f.tracker.Exit(th, parent, at(100))

	snap := f.agg.Snapshot()
	_, ok := snap.Lookup(stats.Identity{Module: "github.com/vendored/retry", Name: "Do"})
	assert.False(t, ok)

	rec := f.lookup(t, "run_pipeline")
	assert.Equal(t, 100*time.Millisecond, rec.TotalTime)
	assert.Equal(t, 70*time.Millisecond, rec.SelfTime)

	require.Len(t, snap.Edges, 1)
	assert.Equal(t, id("run_pipeline"), snap.Edges[0].Caller)
	assert.Equal(t, id("extract"), snap.Edges[0].Callee)
}

func TestTracker_DoubleExitDropped(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	h := f.tracker.Enter(th, fn("extract"), at(0))
	f.tracker.Exit(th, h, at(10))
	f.tracker.Exit(th, h, at(20))
	f.tracker.Exit(th, h, at(30))

	rec := f.lookup(t, "extract")
	assert.Equal(t, int64(1), rec.CallCount)
	assert.Equal(t, 10*time.Millisecond, rec.TotalTime)

	c := f.tracker.Counters()
	assert.Equal(t, int64(2), c.DroppedExits)
	assert.Equal(t, int64(0), c.OpenFrames)

	entries := f.diags.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, DiagExitWithoutEnter, entries[0].Key)
	assert.Equal(t, int64(2), entries[0].Count)
}

func TestTracker_ExitBelowTopDiscardsAbove(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	outer := f.tracker.Enter(th, fn("run_pipeline"), at(0))
	f.tracker.Enter(th, fn("extract"), at(10))
	f.tracker.Enter(th, fn("parse"), at(20))
	f.tracker.Exit(th, outer, at(100))

	assert.Equal(t, Empty, th.State())
	snap := f.agg.Snapshot()
	require.Len(t, snap.Records, 1)
	rec := f.lookup(t, "run_pipeline")
	assert.Equal(t, 100*time.Millisecond, rec.SelfTime)

	c := f.tracker.Counters()
	assert.Equal(t, int64(2), c.DiscardedFrames)
	assert.Equal(t, int64(0), c.OpenFrames)
	assert.True(t, f.diags.Has(DiagUnbalancedExit))
}

func TestTracker_NegativeElapsedClamped(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	h := f.tracker.Enter(th, fn("extract"), at(50))
	f.tracker.Exit(th, h, at(40))

	rec := f.lookup(t, "extract")
	assert.Equal(t, int64(1), rec.CallCount)
	assert.Equal(t, time.Duration(0), rec.TotalTime)
	assert.Equal(t, time.Duration(0), rec.SelfTime)
}

func TestTracker_SelfNeverNegative(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	// The child reports more time than the parent because of clock skew.
	parent := f.tracker.Enter(th, fn("run_pipeline"), at(10))
	child := f.tracker.Enter(th, fn("extract"), at(0))
	f.tracker.Exit(th, child, at(40))
	f.tracker.Exit(th, parent, at(30))

	rec := f.lookup(t, "run_pipeline")
	assert.Equal(t, time.Duration(0), rec.SelfTime)
	assert.Equal(t, int64(1), f.agg.Snapshot().SelfClamps)
}

func TestTracker_ThreadsAreIndependent(t *testing.T) {
	f := newFixture(t, filter.Config{})

	const workers = 8
	const calls = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := f.tracker.NewThread("worker")
			defer f.tracker.Release(th)
			for i := 0; i < calls; i++ {
				outer := f.tracker.Enter(th, fn("process"), at(i*10))
				inner := f.tracker.Enter(th, fn("transform"), at(i*10+2))
				f.tracker.Exit(th, inner, at(i*10+6))
				f.tracker.Exit(th, outer, at(i*10+8))
			}
		}()
	}
	wg.Wait()

	process := f.lookup(t, "process")
	assert.Equal(t, int64(workers*calls), process.CallCount)
	assert.Equal(t, time.Duration(workers*calls)*8*time.Millisecond, process.TotalTime)
	assert.Equal(t, time.Duration(workers*calls)*4*time.Millisecond, process.SelfTime)

	transform := f.lookup(t, "transform")
	assert.Equal(t, int64(workers*calls), transform.CallCount)
	assert.Equal(t, int64(0), f.tracker.Counters().OpenFrames)
}

func TestTracker_ActiveTops(t *testing.T) {
	f := newFixture(t, filter.Config{})
	a := f.tracker.NewThread("a")
	b := f.tracker.NewThread("b")
	c := f.tracker.NewThread("c")

	f.tracker.Enter(a, fn("run_pipeline"), at(0))
	f.tracker.Enter(a, fn("extract"), at(1))
	f.tracker.Enter(b, fn("load"), at(2))

	tops := f.tracker.ActiveTops(nil)
	assert.ElementsMatch(t, []stats.Identity{id("extract"), id("load")}, tops)

	top, ok := c.Top()
	assert.False(t, ok)
	assert.True(t, top.IsZero())

	f.tracker.Release(b)
	assert.ElementsMatch(t, []stats.Identity{id("extract")}, f.tracker.ActiveTops(nil))
	assert.Equal(t, int64(1), f.tracker.Counters().DiscardedFrames)
}

func TestTracker_MemoryDeltaFromLatestSample(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	mem := func(v float64) *resource.Sample { return &resource.Sample{MemoryMB: &v} }

	f.latest.Store(mem(100))
	h := f.tracker.Enter(th, fn("load"), at(0))
	f.latest.Store(mem(164))
	f.tracker.Exit(th, h, at(10))

	assert.InDelta(t, 64.0, f.lookup(t, "load").MemoryDeltaMB, 1e-9)
}

func TestTracker_DisabledIsNoop(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	open := f.tracker.Enter(th, fn("run_pipeline"), at(0))
	f.tracker.Disable()
	assert.False(t, f.tracker.Enabled())

	h := f.tracker.Enter(th, fn("extract"), at(10))
	assert.False(t, h.Tracked())
	f.tracker.Exit(th, h, at(20))

	// Frames opened before disabling still complete.
	f.tracker.Exit(th, open, at(30))
	assert.Equal(t, 1, f.agg.Len())
	assert.Equal(t, int64(1), f.lookup(t, "run_pipeline").CallCount)
}

func TestTracker_CommitAfterFreezeReported(t *testing.T) {
	f := newFixture(t, filter.Config{})
	th := f.tracker.NewThread("main")

	h := f.tracker.Enter(th, fn("extract"), at(0))
	f.agg.Freeze()
	f.tracker.Exit(th, h, at(10))

	assert.Equal(t, 0, f.agg.Len())
	assert.True(t, f.diags.Has(DiagCommitRejected))
	assert.Equal(t, int64(1), f.agg.Snapshot().Rejected)
}

func TestTracker_NilThread(t *testing.T) {
	f := newFixture(t, filter.Config{})

	h := f.tracker.Enter(nil, fn("extract"), at(0))
	assert.False(t, h.Tracked())
	f.tracker.Exit(nil, h, at(1))
	assert.Equal(t, 0, f.agg.Len())
}
