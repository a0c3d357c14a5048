package callstack

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/diag"
	"github.com/coral-mesh/pipelinescope/internal/filter"
	"github.com/coral-mesh/pipelinescope/internal/resource"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Diagnostic keys emitted by the tracker.
const (
	DiagExitWithoutEnter = "exit_without_enter"
	DiagUnbalancedExit   = "unbalanced_exit"
	DiagTrackerPanic     = "tracker_panic"
	DiagCommitRejected   = "commit_rejected"
)

// Tracker owns the per-thread stacks and commits completed invocations to the
// aggregator. It implements Port.
type Tracker struct {
	agg    *stats.Aggregator
	policy *filter.Policy
	latest *resource.Latest
	diags  *diag.Diagnostics
	logger zerolog.Logger

	enabled atomic.Bool
	nextID  atomic.Uint64
	threads sync.Map // uint64 -> *Thread

	open      atomic.Int64
	dropped   atomic.Int64
	discarded atomic.Int64
}

var _ Port = (*Tracker)(nil)
var _ resource.TopSource = (*Tracker)(nil)

// NewTracker creates an enabled tracker. latest may be nil when resource sampling is off.
func NewTracker(
	agg *stats.Aggregator,
	policy *filter.Policy,
	latest *resource.Latest,
	diags *diag.Diagnostics,
	logger zerolog.Logger,
) *Tracker {
	if policy == nil {
		policy = filter.New(filter.Config{})
	}
	t := &Tracker{
		agg:    agg,
		policy: policy,
		latest: latest,
		diags:  diags,
		logger: logger.With().Str("component", "callstack").Logger(),
	}
	t.enabled.Store(true)
	return t
}

// NewThread registers a new logical thread with an empty stack.
func (tr *Tracker) NewThread(name string) *Thread {
	th := &Thread{id: tr.nextID.Add(1), name: name}
	tr.threads.Store(th.id, th)
	tr.logger.Trace().Uint64("thread", th.id).Str("name", name).Msg("Thread registered")
	return th
}

// Release unregisters a thread. Frames still open on it are counted as incomplete
// and never committed.
func (tr *Tracker) Release(th *Thread) {
	if th == nil {
		return
	}
	if _, ok := tr.threads.LoadAndDelete(th.id); !ok {
		return
	}
	if n := len(th.frames); n > 0 {
		tr.open.Add(-int64(n))
		tr.discarded.Add(int64(n))
		th.truncate(0)
	}
	th.collapsed = 0
	th.top.Store(nil)
}

// Enter applies the filter policy to c and pushes a frame when it is tracked.
func (tr *Tracker) Enter(th *Thread, c filter.Candidate, at time.Time) (h Handle) {
	if th == nil || !tr.enabled.Load() {
		return Handle{}
	}
	defer func() {
		if r := recover(); r != nil {
			tr.diags.Once(DiagTrackerPanic, fmt.Sprintf("recovered panic in call tracking: %v", r))
			h = Handle{}
		}
	}()

	// Everything under a collapsed call folds into the nearest tracked ancestor.
	if th.collapsed > 0 {
		th.collapsed++
		return Handle{kind: kindCollapsed}
	}

	switch tr.policy.Evaluate(c) {
	case filter.Ignore:
		return Handle{}
	case filter.Collapse:
		th.collapsed++
		return Handle{kind: kindCollapsed}
	}

	f := &Frame{
		Identity:    c.Identity,
		Entry:       at,
		EntrySample: tr.latest.Load(),
		Parent:      th.current(),
		Stdlib:      tr.policy.IsStdlib(c),
	}
	th.push(f)
	tr.open.Add(1)
	return Handle{kind: kindTracked, frame: f}
}

// Exit completes the invocation started by h.
//
// If frames above h are still open their exits were lost; they are discarded
// without being committed. An exit whose frame is no longer on the stack is dropped.
func (tr *Tracker) Exit(th *Thread, h Handle, at time.Time) {
	if th == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			tr.diags.Once(DiagTrackerPanic, fmt.Sprintf("recovered panic in call tracking: %v", r))
		}
	}()

	switch h.kind {
	case kindNone:
		return
	case kindCollapsed:
		if th.collapsed > 0 {
			th.collapsed--
			return
		}
		tr.drop()
		return
	}

	f := h.frame
	if !th.holds(f) {
		tr.drop()
		return
	}

	if above := len(th.frames) - 1 - f.index; above > 0 {
		tr.discarded.Add(int64(above))
		tr.open.Add(-int64(above))
		tr.diags.Once(DiagUnbalancedExit, "exit arrived for a frame below the stack top; frames above it were discarded")
		th.truncate(f.index + 1)
	}
	// A collapsed region left open by a lost exit ends with its tracked caller.
	th.collapsed = 0

	tr.pop(th, at)
}

func (tr *Tracker) pop(th *Thread, at time.Time) {
	f := th.current()
	th.truncate(len(th.frames) - 1)
	tr.open.Add(-1)

	elapsed := at.Sub(f.Entry)
	if elapsed < 0 {
		elapsed = 0
	}

	var caller stats.Identity
	if f.Parent != nil {
		f.Parent.ChildTime += elapsed
		caller = f.Parent.Identity
	}

	ok := tr.agg.Commit(stats.Completion{
		Identity:      f.Identity,
		Caller:        caller,
		Elapsed:       elapsed,
		Self:          elapsed - f.ChildTime,
		At:            f.Entry,
		MemoryDeltaMB: resource.MemoryDeltaMB(f.EntrySample, tr.latest.Load()),
		Stdlib:        f.Stdlib,
	})
	if !ok {
		tr.diags.Once(DiagCommitRejected, "invocation completed after finalization; not recorded")
	}
}

func (tr *Tracker) drop() {
	tr.dropped.Add(1)
	tr.diags.Once(DiagExitWithoutEnter, "exit event without a matching active frame; dropped")
}

// ActiveTops appends the top identity of every thread with an active frame.
func (tr *Tracker) ActiveTops(dst []stats.Identity) []stats.Identity {
	tr.threads.Range(func(_, v any) bool {
		if id, ok := v.(*Thread).Top(); ok {
			dst = append(dst, id)
		}
		return true
	})
	return dst
}

// Disable stops accepting new frames. Exits for frames already open still commit.
func (tr *Tracker) Disable() {
	tr.enabled.Store(false)
}

// Enabled reports whether Enter pushes frames.
func (tr *Tracker) Enabled() bool {
	return tr.enabled.Load()
}

// Counters summarizes consistency events observed by the tracker.
type Counters struct {
	// OpenFrames is the number of frames pushed but not yet popped.
	OpenFrames int64
	// DroppedExits is the number of exits without a matching frame.
	DroppedExits int64
	// DiscardedFrames is the number of frames discarded without being committed.
	DiscardedFrames int64
}

// Counters returns a snapshot of the consistency counters.
func (tr *Tracker) Counters() Counters {
	return Counters{
		OpenFrames:      tr.open.Load(),
		DroppedExits:    tr.dropped.Load(),
		DiscardedFrames: tr.discarded.Load(),
	}
}
