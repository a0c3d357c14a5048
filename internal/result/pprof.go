package result

import (
	"fmt"
	"io"
	"os"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"

	pserrors "github.com/coral-mesh/pipelinescope/internal/errors"
	"github.com/coral-mesh/pipelinescope/internal/safe"
)

// Profile converts the function stats into a pprof profile with one sample per
// function identity. Values are call count, total time, and self time.
func (r *Result) Profile() *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "calls", Unit: "count"},
			{Type: "total", Unit: "nanoseconds"},
			{Type: "self", Unit: "nanoseconds"},
		},
		DefaultSampleType: "self",
		PeriodType:        &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:            1,
		TimeNanos:         r.Metadata.StartTime.UnixNano(),
		DurationNanos:     int64(safe.DurationFromMs(r.Metadata.ProfilingDurationMs)),
	}

	id := uint64(1)
	for _, key := range r.Keys() {
		fs := r.FunctionStats[key]
		ident := fs.Identity()
		if ident.IsIdle() || fs.CallCount == 0 {
			continue
		}

		fn := &profile.Function{
			ID:         id,
			Name:       ident.Module + "." + ident.Name,
			SystemName: key,
			Filename:   ident.Module,
		}
		loc := &profile.Location{
			ID:   id,
			Line: []profile.Line{{Function: fn}},
		}
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, loc)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value: []int64{
				fs.CallCount,
				int64(safe.DurationFromMs(fs.TotalTimeMs)),
				int64(safe.DurationFromMs(fs.SelfTimeMs)),
			},
			Label: map[string][]string{"module": {ident.Module}},
		})
		id++
	}
	return prof
}

// WritePprof writes the gzipped pprof encoding of r to w.
func (r *Result) WritePprof(w io.Writer) error {
	if err := r.Profile().Write(w); err != nil {
		return fmt.Errorf("failed to encode pprof profile: %w", err)
	}
	return nil
}

// WritePprofFile writes profile.pb.gz to path.
func WritePprofFile(path string, r *Result, logger zerolog.Logger) error {
	f, err := os.Create(path) // #nosec G304 - path is built from the configured output directory.
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer pserrors.DeferClose(logger, f, "failed to close pprof file")

	return r.WritePprof(f)
}
