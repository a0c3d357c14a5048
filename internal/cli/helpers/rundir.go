package helpers

import (
	"errors"
	"fmt"

	"github.com/coral-mesh/pipelinescope/internal/result"
)

// ErrNoRuns is returned when an output directory holds no run directories.
var ErrNoRuns = errors.New("no profiling runs found")

// ResolveRunDir returns ref when set, otherwise the newest run directory under outputDir.
func ResolveRunDir(ref, outputDir string) (string, error) {
	if ref != "" {
		return ref, nil
	}
	runs, err := result.ListRunDirs(outputDir)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoRuns, outputDir)
	}
	return runs[0].Path, nil
}
