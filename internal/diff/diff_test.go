package diff

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

const etl = "github.com/acme/etl"

type call struct {
	name  string
	calls int
	each  time.Duration
}

func buildRun(t *testing.T, runID string, sample int, calls ...call) *result.Result {
	t.Helper()
	agg := stats.NewAggregator()
	for _, c := range calls {
		id := stats.Identity{Module: etl, Name: c.name}
		for i := 0; i < c.calls; i++ {
			agg.Commit(stats.Completion{Identity: id, Elapsed: c.each, Self: c.each})
		}
	}
	agg.Freeze()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return result.Build(result.Input{
		RunID:        runID,
		Start:        start,
		End:          start.Add(time.Second),
		SampleSize:   sample,
		ExpectedSize: 1000,
		Snapshot:     agg.Snapshot(),
	})
}

func baseline(t *testing.T, sample int) *result.Result {
	return buildRun(t, "run-a", sample,
		call{"extract", 10, 10 * time.Millisecond},
		call{"transform", 5, 20 * time.Millisecond},
		call{"load", 1, 50 * time.Millisecond},
		call{"legacy", 1, 5 * time.Millisecond},
	)
}

func candidate(t *testing.T, sample int) *result.Result {
	return buildRun(t, "run-b", sample,
		call{"extract", 10, 10 * time.Millisecond},
		call{"transform", 5, 30 * time.Millisecond},
		call{"load", 1, 40 * time.Millisecond},
		call{"enrich", 2, 5 * time.Millisecond},
	)
}

func byName(r *Report) map[string]Entry {
	out := make(map[string]Entry, len(r.Entries))
	for _, e := range r.Entries {
		out[e.Identity.Name] = e
	}
	return out
}

func TestCompare_Statuses(t *testing.T) {
	rep := Compare(baseline(t, 100), candidate(t, 100))

	assert.Equal(t, "run-a", rep.RunA)
	assert.Equal(t, "run-b", rep.RunB)
	assert.True(t, rep.Projected)
	require.Len(t, rep.Entries, 5)

	entries := byName(rep)
	assert.Equal(t, StatusStable, entries["extract"].Status)
	assert.Equal(t, StatusRegressed, entries["transform"].Status)
	assert.Equal(t, StatusImproved, entries["load"].Status)
	assert.Equal(t, StatusNew, entries["enrich"].Status)
	assert.Equal(t, StatusRemoved, entries["legacy"].Status)

	transform := entries["transform"]
	assert.Equal(t, int64(0), transform.DeltaCalls)
	assert.InDelta(t, 50.0, transform.DeltaTotalMs, 1e-6)
	assert.InDelta(t, 500.0, transform.DeltaProjectedMs, 1e-6)
	assert.InDelta(t, 50.0, transform.ChangePercent, 1e-6)

	enrich := entries["enrich"]
	assert.False(t, enrich.A.Present)
	assert.Equal(t, int64(2), enrich.DeltaCalls)

	legacy := entries["legacy"]
	assert.False(t, legacy.B.Present)
	assert.Equal(t, int64(-1), legacy.DeltaCalls)
	assert.InDelta(t, -5.0, legacy.DeltaTotalMs, 1e-6)

	// Largest projected change first.
	assert.Equal(t, "transform", rep.Entries[0].Identity.Name)
	assert.Equal(t, "extract", rep.Entries[len(rep.Entries)-1].Identity.Name)
}

func TestCompare_ThresholdBoundary(t *testing.T) {
	a := buildRun(t, "a", 100, call{"step", 1, 100 * time.Millisecond})
	slower := buildRun(t, "b", 100, call{"step", 1, 109 * time.Millisecond})
	muchSlower := buildRun(t, "c", 100, call{"step", 1, 111 * time.Millisecond})

	assert.Equal(t, StatusStable, Compare(a, slower).Entries[0].Status)
	assert.Equal(t, StatusRegressed, Compare(a, muchSlower).Entries[0].Status)
}

func TestCompare_FallsBackToTotalTime(t *testing.T) {
	rep := Compare(baseline(t, 0), candidate(t, 100))

	assert.False(t, rep.Projected)
	entries := byName(rep)
	assert.Equal(t, StatusRegressed, entries["transform"].Status)
	assert.InDelta(t, 50.0, entries["transform"].ChangePercent, 1e-6)
	// Only B carries projections.
	assert.InDelta(t, 1500.0, entries["transform"].DeltaProjectedMs, 1e-6)
}

func TestCompare_GrowthFromZero(t *testing.T) {
	a := buildRun(t, "a", 100, call{"noop", 3, 0})
	b := buildRun(t, "b", 100, call{"noop", 3, time.Millisecond})

	e := Compare(a, b).Entries[0]
	assert.Equal(t, StatusRegressed, e.Status)
	assert.Equal(t, "+inf", changeCell(e))
}

func TestCompare_AntiSymmetric(t *testing.T) {
	for _, sample := range []int{0, 100} {
		a, b := baseline(t, sample), candidate(t, 100)

		forward := Compare(a, b)
		backward := Compare(b, a)
		assert.Equal(t, backward, forward.Negate())

		back := byName(backward)
		for _, e := range forward.Entries {
			r := back[e.Identity.Name]
			assert.Equal(t, -e.DeltaCalls, r.DeltaCalls, e.Key)
			assert.Equal(t, -e.DeltaTotalMs, r.DeltaTotalMs, e.Key)
			assert.Equal(t, -e.DeltaProjectedMs, r.DeltaProjectedMs, e.Key)
		}
	}
}

func TestCompare_IdenticalRuns(t *testing.T) {
	rep := Compare(baseline(t, 100), baseline(t, 100))

	assert.Empty(t, rep.Changed())
	assert.Equal(t, map[Status]int{StatusStable: 4}, rep.Counts())
}

func TestRender(t *testing.T) {
	rep := Compare(baseline(t, 100), candidate(t, 100))

	var buf bytes.Buffer
	Render(&buf, rep, RenderOptions{})
	out := buf.String()
	assert.Contains(t, out, "run-a -> run-b")
	assert.Contains(t, out, "1 regressed, 1 improved, 1 new, 1 removed, 1 stable")
	assert.Contains(t, out, "transform")
	assert.Contains(t, out, "+50.0%")
	assert.Contains(t, out, "+500.00ms")

	buf.Reset()
	Render(&buf, rep, RenderOptions{ChangedOnly: true, Limit: 1})
	out = buf.String()
	assert.Contains(t, out, "transform")
	assert.NotContains(t, out, "enrich")

	buf.Reset()
	Render(&buf, Compare(baseline(t, 100), baseline(t, 100)), RenderOptions{ChangedOnly: true})
	assert.Contains(t, buf.String(), "No differences.")
}

func writeRun(t *testing.T, dir string, at time.Time, r *result.Result) string {
	t.Helper()
	runDir, err := result.CreateRunDir(dir, at)
	require.NoError(t, err)
	require.NoError(t, result.WriteJSON(filepath.Join(runDir, result.DataFile), r, zerolog.Nop()))
	return runDir
}

func TestLatestPair(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LatestPair(dir)
	assert.ErrorIs(t, err, ErrNotEnoughRuns)

	first := writeRun(t, dir, time.Unix(1_700_000_000, 0), baseline(t, 100))
	second := writeRun(t, dir, time.Unix(1_700_000_100, 0), candidate(t, 100))

	older, newer, err := LatestPair(dir)
	require.NoError(t, err)
	assert.Equal(t, first, older)
	assert.Equal(t, second, newer)

	rep, err := CompareRefs(context.Background(), older, newer, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-a", rep.RunA)
	assert.Equal(t, StatusRegressed, byName(rep)["transform"].Status)
}

type fakeHistory map[string]*result.Result

func (f fakeHistory) LoadRun(_ context.Context, id string) (*result.Result, error) {
	r, ok := f[id]
	if !ok {
		return nil, errors.New("no such run")
	}
	return r, nil
}

func TestCompareRefs_History(t *testing.T) {
	hist := fakeHistory{"a": baseline(t, 100), "b": candidate(t, 100)}

	rep, err := CompareRefs(context.Background(), "a", "b", hist)
	require.NoError(t, err)
	assert.Equal(t, "run-b", rep.RunB)

	_, err = CompareRefs(context.Background(), "a", "missing", hist)
	assert.ErrorContains(t, err, "failed to load run missing from history")
}

func TestResolve_MissingPath(t *testing.T) {
	_, err := Resolve(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}
