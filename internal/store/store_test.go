package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/duckdb"
	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

var extract = stats.Identity{Module: "github.com/acme/etl", Name: "extract"}

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := duckdb.Open("", duckdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func buildRun(t *testing.T, runID string, end time.Time, each time.Duration) *result.Result {
	t.Helper()
	agg := stats.NewAggregator()
	for i := 0; i < 4; i++ {
		agg.Commit(stats.Completion{Identity: extract, Elapsed: each, Self: each})
	}
	cpu := 20.0
	agg.RecordResourceSample(stats.IdleIdentity, stats.ResourceSample{CPUPercent: &cpu})
	agg.Freeze()
	return result.Build(result.Input{
		RunID:        runID,
		Start:        end.Add(-time.Second),
		End:          end,
		SampleSize:   10,
		ExpectedSize: 100,
		Snapshot:     agg.Snapshot(),
	})
}

func TestStore_SaveLoadRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	end := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	run := buildRun(t, "run-1", end, 5*time.Millisecond)

	require.NoError(t, s.SaveRun(ctx, run, "/tmp/out/run_1"))

	loaded, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Metadata.RunID, loaded.Metadata.RunID)
	assert.Equal(t, run.Keys(), loaded.Keys())
	fs := loaded.FunctionStats[extract.String()]
	assert.Equal(t, int64(4), fs.CallCount)
	x, ok := loaded.Extrapolated(extract.String())
	require.True(t, ok)
	assert.InDelta(t, 200.0, x.ExtrapolatedTotalTimeMs, 1e-6)

	_, err = s.LoadRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveRun(ctx, buildRun(t, id, base.Add(time.Duration(i)*time.Hour), time.Millisecond), ""))
	}

	runs, err := s.ListRuns(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[2].RunID)
	assert.Empty(t, runs[0].Document)
	assert.Equal(t, int64(10), runs[0].SampleSize)
	assert.True(t, runs[0].ExtrapolationAvailable)

	runs, err = s.ListRuns(ctx, ListOptions{Since: base.Add(30 * time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].RunID)
}

func TestStore_SaveRunReplaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	end := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, buildRun(t, "same", end, time.Millisecond), ""))
	require.NoError(t, s.SaveRun(ctx, buildRun(t, "same", end, 3*time.Millisecond), ""))

	runs, err := s.ListRuns(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	rows, err := s.FunctionHistory(ctx, extract, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 12.0, rows[0].TotalTimeMs, 1e-6)
}

func TestStore_FunctionHistory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, buildRun(t, "a", base, 2*time.Millisecond), ""))
	require.NoError(t, s.SaveRun(ctx, buildRun(t, "b", base.Add(time.Hour), 4*time.Millisecond), ""))

	rows, err := s.FunctionHistory(ctx, extract, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].RunID)
	assert.Equal(t, extract.Name, rows[0].Name)
	assert.InDelta(t, 16.0, rows[0].TotalTimeMs, 1e-6)
	assert.InDelta(t, 160.0, rows[0].ProjectedTimeMs, 1e-6)
	assert.Equal(t, IdentityKey(extract), rows[0].IdentityHash)

	// The idle bucket is not persisted per function.
	rows, err = s.FunctionHistory(ctx, stats.IdleIdentity, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_DeleteRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveRun(ctx, buildRun(t, "gone", time.Now().UTC(), time.Millisecond), ""))
	require.NoError(t, s.DeleteRun(ctx, "gone"))
	require.NoError(t, s.DeleteRun(ctx, "gone"))

	_, err := s.LoadRun(ctx, "gone")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_OpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.duckdb")

	s, err := Open(path, false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, buildRun(t, "persisted", time.Now().UTC(), time.Millisecond), ""))
	require.NoError(t, s.Close())

	ro, err := Open(path, true, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	r, err := ro.LoadRun(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", r.Metadata.RunID)
}
