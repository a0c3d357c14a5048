// Package callstack maintains per-thread stacks of active invocations and commits
// completed invocations to the stats aggregator.
package callstack

import (
	"time"

	"github.com/coral-mesh/pipelinescope/internal/filter"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Port is the boundary through which function enter and exit events reach the
// tracker. Adapters translate their native hook (explicit defer points, code
// generation, trap interceptors) into calls on a Port.
//
// Enter and Exit run inline on the monitored goroutine. They never block, never
// return errors, and never panic into the caller.
type Port interface {
	Enter(t *Thread, c filter.Candidate, at time.Time) Handle
	Exit(t *Thread, h Handle, at time.Time)
}

type handleKind uint8

const (
	kindNone handleKind = iota
	kindTracked
	kindCollapsed
)

// Handle identifies what Enter did so that the matching Exit can undo it.
// The zero Handle is valid and makes Exit a no-op.
type Handle struct {
	kind  handleKind
	frame *Frame
}

// Tracked reports whether Enter pushed a frame.
func (h Handle) Tracked() bool {
	return h.kind == kindTracked
}

// Collapsed reports whether Enter folded the call into its caller.
func (h Handle) Collapsed() bool {
	return h.kind == kindCollapsed
}

// Identity returns the identity of the pushed frame, or zero.
func (h Handle) Identity() stats.Identity {
	if h.frame == nil {
		return stats.Identity{}
	}
	return h.frame.Identity
}
