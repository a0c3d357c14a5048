package extrapolation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/stats"
)

func rec(name string, calls int64, total, self time.Duration) stats.Record {
	return stats.Record{
		Identity:  stats.Identity{Module: "github.com/acme/etl", Name: name},
		CallCount: calls,
		TotalTime: total,
		SelfTime:  self,
	}
}

func TestExtrapolate_ProductionScale(t *testing.T) {
	r := rec("extract", 5, 20*time.Millisecond, 10*time.Millisecond)

	out, err := Extrapolate([]stats.Record{r}, 100, 1_000_000)
	require.NoError(t, err)

	x := out[r.Identity]
	assert.Equal(t, int64(50000), x.ExtrapolatedCallCount)
	assert.InDelta(t, 200000.0, x.ExtrapolatedTotalTimeMs, 1e-6)
	assert.InDelta(t, 100000.0, x.ExtrapolatedSelfTimeMs, 1e-6)
	assert.InDelta(t, 100.0, x.PercentageOfTotal, 1e-9)
}

func TestExtrapolate_Scales(t *testing.T) {
	tests := []struct {
		name      string
		sample    int
		expected  int
		calls     int64
		total     time.Duration
		wantCalls int64
		wantTotal float64
	}{
		{name: "identity", sample: 100, expected: 100, calls: 7, total: 35 * time.Millisecond, wantCalls: 7, wantTotal: 35},
		{name: "up", sample: 100, expected: 10000, calls: 100, total: time.Second, wantCalls: 10000, wantTotal: 100000},
		{name: "down", sample: 10000, expected: 100, calls: 1000, total: 5 * time.Second, wantCalls: 10, wantTotal: 50},
		{name: "round half up", sample: 2, expected: 3, calls: 1, total: 0, wantCalls: 2, wantTotal: 0},
		{name: "round down", sample: 3, expected: 4, calls: 1, total: 0, wantCalls: 1, wantTotal: 0},
		{name: "zero expected", sample: 10, expected: 0, calls: 4, total: time.Millisecond, wantCalls: 0, wantTotal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rec("f", tt.calls, tt.total, tt.total)
			out, err := Extrapolate([]stats.Record{r}, tt.sample, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, out[r.Identity].ExtrapolatedCallCount)
			assert.InDelta(t, tt.wantTotal, out[r.Identity].ExtrapolatedTotalTimeMs, 1e-6)
		})
	}
}

func TestExtrapolate_Percentages(t *testing.T) {
	a := rec("a", 1, 600*time.Millisecond, 600*time.Millisecond)
	b := rec("b", 1, 400*time.Millisecond, 400*time.Millisecond)

	out, err := Extrapolate([]stats.Record{a, b}, 10, 100)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, out[a.Identity].PercentageOfTotal, 1e-9)
	assert.InDelta(t, 40.0, out[b.Identity].PercentageOfTotal, 1e-9)
}

func TestExtrapolate_NoTimeLeavesPercentagesZero(t *testing.T) {
	a := rec("a", 3, 0, 0)

	out, err := Extrapolate([]stats.Record{a}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[a.Identity].PercentageOfTotal)
	assert.Equal(t, int64(30), out[a.Identity].ExtrapolatedCallCount)
}

func TestExtrapolate_SkipsIdle(t *testing.T) {
	idle := stats.Record{Identity: stats.IdleIdentity, Samples: 12}
	a := rec("a", 1, time.Millisecond, time.Millisecond)

	out, err := Extrapolate([]stats.Record{idle, a}, 1, 2)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	_, ok := out[stats.IdleIdentity]
	assert.False(t, ok)
}

func TestExtrapolate_Errors(t *testing.T) {
	r := rec("a", 1, time.Millisecond, time.Millisecond)

	_, err := Extrapolate([]stats.Record{r}, 0, 100)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Extrapolate([]stats.Record{r}, -1, 100)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = Extrapolate([]stats.Record{r}, 10, -5)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestExtrapolate_Empty(t *testing.T) {
	out, err := Extrapolate(nil, 100, 1000)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestScaleFactor(t *testing.T) {
	s, err := ScaleFactor(100, 1_000_000)
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, s, 1e-9)
}
