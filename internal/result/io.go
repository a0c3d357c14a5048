package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/safe"
)

// File names inside a run directory.
const (
	DataFile    = "profile_data.json"
	SummaryFile = "summary.html"
	PprofFile   = "profile.pb.gz"
	runPrefix   = "run_"
)

// RunDirName returns the directory name for a run that ended at t.
func RunDirName(t time.Time) string {
	return runPrefix + strconv.FormatInt(t.Unix(), 10)
}

// CreateRunDir creates <outputDir>/run_<unix>. When two runs end within the same
// second a numeric suffix keeps them apart.
func CreateRunDir(outputDir string, t time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Join(outputDir, RunDirName(t))
	dir := base
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create run directory: %w", err)
		}
		dir = fmt.Sprintf("%s_%d", base, i)
	}
}

// WriteJSON writes r to path atomically.
func WriteJSON(path string, r *Result, logger zerolog.Logger) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile data: %w", err)
	}
	if err := safe.WriteFileAtomic(path, data, 0o644, logger); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a document written by WriteJSON.
func ReadJSON(path string) (*Result, error) {
	data, err := safe.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}

// Load accepts either a run directory or the path of a profile_data.json file.
func Load(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, DataFile)
	}
	return ReadJSON(path)
}

// RunDir is a run directory found under an output directory.
type RunDir struct {
	Path  string
	Ended time.Time
}

// ListRunDirs returns the run directories under outputDir that contain a profile
// document, newest first.
func ListRunDirs(outputDir string) ([]RunDir, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", outputDir, err)
	}

	var runs []RunDir
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		ts, ok := parseRunTimestamp(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(outputDir, e.Name())
		if _, err := os.Stat(filepath.Join(path, DataFile)); err != nil {
			continue
		}
		runs = append(runs, RunDir{Path: path, Ended: ts})
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Ended.Equal(runs[j].Ended) {
			return runs[i].Ended.After(runs[j].Ended)
		}
		return runs[i].Path > runs[j].Path
	})
	return runs, nil
}

func parseRunTimestamp(name string) (time.Time, bool) {
	rest := strings.TrimPrefix(name, runPrefix)
	if idx := strings.IndexByte(rest, '_'); idx >= 0 {
		rest = rest[:idx]
	}
	sec, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}
