package diff

import (
	"context"
	"errors"
	"fmt"

	"github.com/coral-mesh/pipelinescope/internal/result"
)

// ErrNotEnoughRuns is returned when fewer than two runs are available to compare.
var ErrNotEnoughRuns = errors.New("at least two runs are required")

// History loads runs recorded in the run history database.
type History interface {
	LoadRun(ctx context.Context, runID string) (*result.Result, error)
}

// Resolve loads a run by reference. With a history, ref is a run ID; otherwise it is
// a run directory or a profile_data.json path.
func Resolve(ctx context.Context, ref string, hist History) (*result.Result, error) {
	if hist != nil {
		r, err := hist.LoadRun(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s from history: %w", ref, err)
		}
		return r, nil
	}
	return result.Load(ref)
}

// LatestPair returns the second newest and newest run directories under outputDir,
// in that order.
func LatestPair(outputDir string) (older, newer string, err error) {
	runs, err := result.ListRunDirs(outputDir)
	if err != nil {
		return "", "", err
	}
	if len(runs) < 2 {
		return "", "", fmt.Errorf("%w: found %d in %s", ErrNotEnoughRuns, len(runs), outputDir)
	}
	return runs[1].Path, runs[0].Path, nil
}

// CompareRefs resolves both references and compares b against a.
func CompareRefs(ctx context.Context, a, b string, hist History) (*Report, error) {
	ra, err := Resolve(ctx, a, hist)
	if err != nil {
		return nil, err
	}
	rb, err := Resolve(ctx, b, hist)
	if err != nil {
		return nil, err
	}
	return Compare(ra, rb), nil
}
