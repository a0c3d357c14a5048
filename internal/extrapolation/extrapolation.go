// Package extrapolation projects per-function metrics measured on a sample run to the
// expected production workload size using a linear model.
package extrapolation

import (
	"errors"
	"fmt"
	"math"

	"github.com/coral-mesh/pipelinescope/internal/stats"
)

var (
	// ErrUnavailable is returned when the sample size is zero and no scale factor exists.
	ErrUnavailable = errors.New("extrapolation unavailable: sample size is zero")
	// ErrInvalidSize is returned for negative sample or expected sizes.
	ErrInvalidSize = errors.New("extrapolation sizes must not be negative")
)

// Record is the projection of one function record. It is computed once and never mutated.
type Record struct {
	Identity                stats.Identity
	ExtrapolatedCallCount   int64
	ExtrapolatedTotalTimeMs float64
	ExtrapolatedSelfTimeMs  float64
	// PercentageOfTotal is this function's share of the summed projected self time, 0 to 100.
	PercentageOfTotal float64
}

// ScaleFactor returns expected/sample.
func ScaleFactor(sampleSize, expectedSize int) (float64, error) {
	if sampleSize < 0 || expectedSize < 0 {
		return 0, fmt.Errorf("%w: sample=%d expected=%d", ErrInvalidSize, sampleSize, expectedSize)
	}
	if sampleSize == 0 {
		return 0, ErrUnavailable
	}
	return float64(expectedSize) / float64(sampleSize), nil
}

// Extrapolate scales every record by expected/sample. Call counts are rounded half away
// from zero. The idle bucket carries no calls or time and is skipped.
func Extrapolate(records []stats.Record, sampleSize, expectedSize int) (map[stats.Identity]Record, error) {
	scale, err := ScaleFactor(sampleSize, expectedSize)
	if err != nil {
		return nil, err
	}

	out := make(map[stats.Identity]Record, len(records))
	var totalSelf float64
	for _, r := range records {
		if r.Identity.IsIdle() {
			continue
		}
		x := Record{
			Identity:                r.Identity,
			ExtrapolatedCallCount:   roundCount(float64(r.CallCount) * scale),
			ExtrapolatedTotalTimeMs: r.TotalTimeMs() * scale,
			ExtrapolatedSelfTimeMs:  r.SelfTimeMs() * scale,
		}
		totalSelf += x.ExtrapolatedSelfTimeMs
		out[r.Identity] = x
	}

	if totalSelf > 0 {
		for k, x := range out {
			x.PercentageOfTotal = x.ExtrapolatedSelfTimeMs / totalSelf * 100
			out[k] = x
		}
	}
	return out, nil
}

func roundCount(v float64) int64 {
	v = math.Round(v)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
