package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Call describes repeated invocations of one function in a fixture run.
type Call struct {
	Module string
	Name   string
	Count  int
	Each   time.Duration
	// Caller is an optional module:name key of the calling function.
	Caller string
	Stdlib bool
}

// RunBuilder assembles a finalized result without running the engine.
type RunBuilder struct {
	ID           string
	Start        time.Time
	Duration     time.Duration
	SampleSize   int
	ExpectedSize int
	Calls        []Call
}

// NewRun returns a builder for a one-second run with extrapolation from 100 to 1000.
func NewRun(id string, start time.Time) *RunBuilder {
	return &RunBuilder{ID: id, Start: start, Duration: time.Second, SampleSize: 100, ExpectedSize: 1000}
}

// With adds invocations.
func (b *RunBuilder) With(calls ...Call) *RunBuilder {
	b.Calls = append(b.Calls, calls...)
	return b
}

// Build finalizes the run.
func (b *RunBuilder) Build(t *testing.T) *result.Result {
	t.Helper()
	agg := stats.NewAggregator()
	for _, c := range b.Calls {
		var caller stats.Identity
		if c.Caller != "" {
			caller = stats.ParseIdentity(c.Caller)
		}
		id := stats.Identity{Module: c.Module, Name: c.Name}
		for i := 0; i < c.Count; i++ {
			agg.Commit(stats.Completion{Identity: id, Caller: caller, Elapsed: c.Each, Self: c.Each, At: b.Start, Stdlib: c.Stdlib})
		}
	}
	agg.Freeze()

	return result.Build(result.Input{
		RunID:        b.ID,
		Version:      "test",
		Start:        b.Start,
		End:          b.Start.Add(b.Duration),
		SampleSize:   b.SampleSize,
		ExpectedSize: b.ExpectedSize,
		Snapshot:     agg.Snapshot(),
	})
}

// WriteRun builds the run and writes it as a run directory under outputDir,
// returning the directory.
func (b *RunBuilder) WriteRun(t *testing.T, outputDir string) (string, *result.Result) {
	t.Helper()
	res := b.Build(t)
	dir, err := result.CreateRunDir(outputDir, b.Start.Add(b.Duration))
	if err != nil {
		t.Fatalf("failed to create run dir: %v", err)
	}
	if err := result.WriteJSON(filepath.Join(dir, result.DataFile), res, zerolog.Nop()); err != nil {
		t.Fatalf("failed to write run: %v", err)
	}
	return dir, res
}
