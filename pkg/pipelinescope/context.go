package pipelinescope

import (
	"context"

	"github.com/coral-mesh/pipelinescope/internal/callstack"
	"github.com/coral-mesh/pipelinescope/internal/filter"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

type engineKey struct{}

type threadKey struct{}

func withEngine(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

func withThread(ctx context.Context, th *callstack.Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, th)
}

// FromContext returns the engine bound to ctx, or nil.
func FromContext(ctx context.Context) *Engine {
	e, _ := ctx.Value(engineKey{}).(*Engine)
	return e
}

func bound(ctx context.Context) (*Engine, *callstack.Thread) {
	e := FromContext(ctx)
	if e == nil {
		return nil, nil
	}
	th, _ := ctx.Value(threadKey{}).(*callstack.Thread)
	return e, th
}

func noop() {}

// Track records a call of the function that calls it. The returned func ends the
// call and must run exactly once, typically deferred:
//
//	defer pipelinescope.Track(ctx)()
//
// The function's identity comes from the caller's program counter and is cached
// per call site.
func Track(ctx context.Context) func() {
	e, th := bound(ctx)
	if th == nil {
		return noop
	}
	return e.enter(th, e.resolver.Caller(1))
}

// TrackAs records a call under an explicit identity, for code whose runtime symbol
// is not meaningful (closures, generated code, stages named by configuration).
// The caller's source file is kept so the stdlib rule sees where the call lives.
func TrackAs(ctx context.Context, module, name string) func() {
	e, th := bound(ctx)
	if th == nil {
		return noop
	}
	c := e.resolver.Caller(1)
	c.Identity = stats.Identity{Module: module, Name: name}
	return e.enter(th, c)
}

func (e *Engine) enter(th *callstack.Thread, c filter.Candidate) func() {
	h := e.port.Enter(th, c, e.now())
	if !h.Tracked() && !h.Collapsed() {
		return noop
	}
	return func() { e.port.Exit(th, h, e.now()) }
}

// WithThread returns ctx bound to a new logical thread for use by another goroutine,
// and a func releasing the thread once that goroutine is done. Frames still open at
// release are counted as discarded.
func WithThread(ctx context.Context) (context.Context, func()) {
	e := FromContext(ctx)
	if e == nil {
		return ctx, noop
	}
	th := e.tracker.NewThread("")
	return withThread(ctx, th), func() { e.tracker.Release(th) }
}

// Go runs fn on a new goroutine with its own logical thread.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	tctx, release := WithThread(ctx)
	go func() {
		defer release()
		fn(tctx)
	}()
}
