package callstack

import (
	"sync/atomic"
	"time"

	"github.com/coral-mesh/pipelinescope/internal/resource"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// State is the lifecycle state of a logical thread's stack.
type State int

const (
	// Empty means no frame is active.
	Empty State = iota
	// Active means at least one frame is active.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "empty"
}

// Frame is one live invocation on a thread's stack.
type Frame struct {
	Identity    stats.Identity
	Entry       time.Time
	EntrySample *resource.Sample
	// Parent is the nearest tracked ancestor; nil for a root frame.
	Parent *Frame
	// ChildTime is the sum of elapsed time of tracked frames popped while this frame was active.
	ChildTime time.Duration
	Stdlib    bool

	index int
}

// Thread is a logical thread of execution with its own strictly LIFO stack.
// A Thread must only be driven by one goroutine at a time; only its published top
// identity is read from other goroutines.
type Thread struct {
	id   uint64
	name string

	frames    []*Frame
	collapsed int

	top atomic.Pointer[stats.Identity]
}

// ID returns the thread's numeric id.
func (t *Thread) ID() uint64 {
	return t.id
}

// Name returns the label the thread was created with.
func (t *Thread) Name() string {
	return t.name
}

// State reports whether the stack has active frames. Owner goroutine only.
func (t *Thread) State() State {
	if len(t.frames) == 0 {
		return Empty
	}
	return Active
}

// Depth returns the number of tracked frames on the stack. Owner goroutine only.
func (t *Thread) Depth() int {
	return len(t.frames)
}

// Top returns the identity published as the current top, safe from any goroutine.
func (t *Thread) Top() (stats.Identity, bool) {
	p := t.top.Load()
	if p == nil {
		return stats.Identity{}, false
	}
	return *p, true
}

func (t *Thread) current() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Thread) push(f *Frame) {
	f.index = len(t.frames)
	t.frames = append(t.frames, f)
	t.top.Store(&f.Identity)
}

// truncate drops every frame at index n and above and republishes the top.
func (t *Thread) truncate(n int) {
	for i := n; i < len(t.frames); i++ {
		t.frames[i] = nil
	}
	t.frames = t.frames[:n]
	t.publishTop()
}

func (t *Thread) publishTop() {
	if f := t.current(); f != nil {
		t.top.Store(&f.Identity)
		return
	}
	t.top.Store(nil)
}

func (t *Thread) holds(f *Frame) bool {
	return f != nil && f.index < len(t.frames) && t.frames[f.index] == f
}
