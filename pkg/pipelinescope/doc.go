// Package pipelinescope profiles Go data pipelines function by function.
//
// An Engine records every instrumented call (count, total and self time, caller
// edges), attributes periodic CPU, memory, and GPU samples to the functions running
// at the time, and projects the measured run to a production-sized workload by
// linear scaling.
//
// Instrument a pipeline by deferring Track at the top of each function:
//
//	func extract(ctx context.Context) error {
//	    defer pipelinescope.Track(ctx)()
//	    ...
//	}
//
// and run it under an engine:
//
//	cfg, err := config.Load("")
//	res, err := pipelinescope.Run(ctx, *cfg, func(ctx context.Context) error {
//	    return runPipeline(ctx)
//	})
//
// Each goroutine that calls Track needs its own logical thread: start goroutines
// with Go, or derive a context with WithThread. Without an engine in the context
// every instrumentation point is a no-op.
package pipelinescope
