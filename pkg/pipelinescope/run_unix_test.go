//go:build unix

package pipelinescope_test

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/pkg/pipelinescope"
)

func TestRun_InterruptFinalizes(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.OutputDir = t.TempDir()
	cfg.EnablePprof = false
	cfg.EnableDashboard = false
	cfg.EnableHistory = false

	res, err := pipelinescope.Run(context.Background(), cfg, func(ctx context.Context) error {
		extract(ctx, clock)
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("context was not cancelled by SIGINT")
		}
		e := pipelinescope.FromContext(ctx)
		require.NotNil(t, e)
		// The interrupt path finalizes before fn has returned.
		assert.Eventually(t, func() bool { return e.Result() != nil }, 5*time.Second, 10*time.Millisecond)
		return ctx.Err()
	}, pipelinescope.WithLogger(zerolog.Nop()), pipelinescope.WithClock(clock.Now))

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, int64(1), res.FunctionStats[key("extract")].CallCount)

	runs, err := result.ListRunDirs(cfg.OutputDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	saved, err := result.Load(runs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, res.Metadata.RunID, saved.Metadata.RunID)
}
