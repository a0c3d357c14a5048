package pipelinescope

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/resource"
	"github.com/coral-mesh/pipelinescope/internal/result"
)

type options struct {
	logger    *zerolog.Logger
	clock     func() time.Time
	runID     string
	cpuReader resource.CPUReader
	gpuReader resource.GPUReader
	cacheSize int
	writers   []namedWriter
}

// OutputWriter writes an extra artifact for a finalized run into its run directory.
type OutputWriter func(dir string, res *result.Result) error

type namedWriter struct {
	name  string
	write OutputWriter
}

// Option customizes an Engine.
type Option func(*options)

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithClock replaces time.Now for call timestamps and run boundaries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithRunID sets the run identifier instead of a generated UUID.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// WithCPUReader replaces the process CPU and memory reader.
func WithCPUReader(r resource.CPUReader) Option {
	return func(o *options) { o.cpuReader = r }
}

// WithGPUReader replaces the nvidia-smi GPU reader.
func WithGPUReader(r resource.GPUReader) Option {
	return func(o *options) { o.gpuReader = r }
}

// WithSymbolCacheSize bounds the number of resolved call sites kept in memory.
func WithSymbolCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithOutputWriter adds a writer that runs after the built-in outputs whenever an
// output directory is configured. Its errors are logged under name.
func WithOutputWriter(name string, w OutputWriter) Option {
	return func(o *options) {
		if w != nil {
			o.writers = append(o.writers, namedWriter{name: name, write: w})
		}
	}
}
