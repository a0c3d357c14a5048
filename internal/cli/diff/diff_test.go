package diff

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/diff"
	"github.com/coral-mesh/pipelinescope/internal/testutil"
)

const etl = "github.com/acme/etl"

var start = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func baseline() *testutil.RunBuilder {
	return testutil.NewRun("base", start).With(
		testutil.Call{Module: etl, Name: "extract", Count: 10, Each: 10 * time.Millisecond},
		testutil.Call{Module: etl, Name: "load", Count: 1, Each: 50 * time.Millisecond},
		testutil.Call{Module: etl, Name: "legacy", Count: 1, Each: 5 * time.Millisecond},
	)
}

func candidate() *testutil.RunBuilder {
	return testutil.NewRun("cand", start.Add(time.Hour)).With(
		testutil.Call{Module: etl, Name: "extract", Count: 10, Each: 20 * time.Millisecond},
		testutil.Call{Module: etl, Name: "load", Count: 1, Each: 51 * time.Millisecond},
		testutil.Call{Module: etl, Name: "enrich", Count: 3, Each: 2 * time.Millisecond},
	)
}

func setup(t *testing.T) (*config.Config, string, string) {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	a, _ := baseline().WriteRun(t, cfg.OutputDir)
	b, _ := candidate().WriteRun(t, cfg.OutputDir)
	return cfg, a, b
}

func flags() diffFlags {
	return diffFlags{format: "table"}
}

func TestRunDiff_LatestPair(t *testing.T) {
	cfg, _, _ := setup(t)

	var out bytes.Buffer
	require.NoError(t, runDiff(context.Background(), &out, cfg, nil, flags()))

	s := out.String()
	assert.Contains(t, s, "base -> cand")
	assert.Contains(t, s, "1 regressed, 0 improved, 1 new, 1 removed, 1 stable")
}

func TestRunDiff_JSONAndFailOnRegression(t *testing.T) {
	cfg, a, b := setup(t)
	f := flags()
	f.format = "json"
	f.failOnRegression = true

	var out bytes.Buffer
	err := runDiff(context.Background(), &out, cfg, []string{a, b}, f)
	assert.ErrorIs(t, err, ErrRegression)

	var rep diff.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "base", rep.RunA)
	assert.True(t, rep.Projected)
	require.NotEmpty(t, rep.Entries)
	assert.Equal(t, etl+":extract", rep.Entries[0].Key)
	assert.Equal(t, diff.StatusRegressed, rep.Entries[0].Status)

	// Swapping the runs turns the regression into an improvement.
	out.Reset()
	require.NoError(t, runDiff(context.Background(), &out, cfg, []string{b, a}, f))
}

func TestRunDiff_History(t *testing.T) {
	s, path := testutil.NewTestStore(t)
	ctx, cancel := testutil.NewTestContext()
	defer cancel()
	require.NoError(t, s.SaveRun(ctx, baseline().Build(t), ""))
	require.NoError(t, s.SaveRun(ctx, candidate().Build(t), ""))
	require.NoError(t, s.Close())

	cfg := config.Default()
	f := flags()
	f.history = true
	f.historyPath = path
	f.changedOnly = true

	var out bytes.Buffer
	require.NoError(t, runDiff(ctx, &out, cfg, []string{"base", "cand"}, f))
	assert.Contains(t, out.String(), "extract")
	assert.NotContains(t, out.String(), "│ load")

	assert.Error(t, runDiff(ctx, &out, cfg, nil, f))
	assert.Error(t, runDiff(ctx, &out, cfg, []string{"base", "missing"}, f))
}

func TestRunDiff_NotEnoughRuns(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	baseline().WriteRun(t, cfg.OutputDir)

	err := runDiff(context.Background(), &bytes.Buffer{}, cfg, nil, flags())
	assert.ErrorIs(t, err, diff.ErrNotEnoughRuns)
}

func TestNewDiffCmd_Args(t *testing.T) {
	cmd := NewDiffCmd("diff [run-a run-b]")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"only-one"})
	assert.ErrorContains(t, cmd.Execute(), "expected two runs or none")

	for _, name := range []string{"history", "history-path", "changed", "limit", "fail-on-regression", "format", "config"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
