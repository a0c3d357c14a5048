package pipelinescope

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/callstack"
	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/diag"
	pserrors "github.com/coral-mesh/pipelinescope/internal/errors"
	"github.com/coral-mesh/pipelinescope/internal/filter"
	"github.com/coral-mesh/pipelinescope/internal/logging"
	"github.com/coral-mesh/pipelinescope/internal/resource"
	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
	"github.com/coral-mesh/pipelinescope/internal/symbol"
	"github.com/coral-mesh/pipelinescope/pkg/version"
)

// Calls into the profiler's own packages are never recorded.
const selfModulePrefix = "github.com/coral-mesh/pipelinescope/internal/"

// DiagConfigInvalid is reported when the configuration fails validation.
const DiagConfigInvalid = "config_invalid"

// Engine is one profiling session. At most one engine should be active per process.
type Engine struct {
	cfg    config.Config
	opts   options
	now    func() time.Time
	runID  string
	logger zerolog.Logger
	base   zerolog.Logger
	logs   io.Closer

	agg      *stats.Aggregator
	diags    *diag.Diagnostics
	latest   *resource.Latest
	tracker  *callstack.Tracker
	resolver *symbol.Resolver
	// port receives enter and exit events; it is the tracker unless wrapped.
	port callstack.Port

	mu            sync.Mutex
	started       bool
	stopped       bool
	start         time.Time
	main          *callstack.Thread
	sampler       *resource.Sampler
	cancelSampler context.CancelFunc
	samplerDone   chan struct{}

	stopOnce sync.Once
	result   *result.Result
	runDir   string
}

// New creates an engine for cfg. Nothing is measured until Start.
func New(cfg config.Config, opts ...Option) *Engine {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg, opts: o, now: o.clock, runID: o.runID}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	e.base, e.logs = e.buildLogger()
	e.base = e.base.With().Str("run_id", e.runID).Logger()
	e.logger = e.base.With().Str("component", "engine").Logger()

	e.diags = diag.New(e.base)
	e.agg = stats.NewAggregator()
	e.latest = &resource.Latest{}
	policy := filter.New(filter.Config{
		CollapseStdlib: cfg.CollapseStdlib,
		IgnoreModules:  cfg.IgnoreModules,
		SelfModules:    []string{selfModulePrefix},
	})
	e.tracker = callstack.NewTracker(e.agg, policy, e.latest, e.diags, e.base)
	e.port = e.tracker
	e.resolver = symbol.NewResolver(o.cacheSize)

	if err := cfg.Validate(); err != nil {
		e.diags.OnceErr(DiagConfigInvalid, "configuration is invalid; affected features degrade for this run", err)
	}
	return e
}

func (e *Engine) buildLogger() (zerolog.Logger, io.Closer) {
	if e.opts.logger != nil {
		return *e.opts.logger, nil
	}

	rc := logging.RunConfig{Level: e.cfg.LogLevel, Console: e.cfg.EnableConsoleLogging}
	if e.cfg.OutputDir != "" {
		rc.FilePath = e.cfg.ResolvedLogPath()
	}
	logger, closer, err := logging.NewRun(rc)
	if err != nil {
		fallback := logging.New(logging.Config{Level: e.cfg.LogLevel, Pretty: true, Output: os.Stderr})
		fallback.Warn().Err(err).Msg("File logging unavailable; logging to stderr")
		return fallback, closer
	}
	return logger, closer
}

// Start begins profiling and returns ctx bound to the engine and its main logical
// thread. Calling Start again returns a new binding to the same session.
func (e *Engine) Start(ctx context.Context) context.Context {
	e.mu.Lock()
	if !e.started && !e.stopped {
		e.startLocked(ctx)
	}
	main := e.main
	e.mu.Unlock()

	if main == nil {
		return withEngine(ctx, e)
	}
	return withThread(withEngine(ctx, e), main)
}

func (e *Engine) startLocked(ctx context.Context) {
	e.started = true
	e.start = e.now()
	e.main = e.tracker.NewThread("main")

	var sopts []resource.Option
	if e.opts.cpuReader != nil {
		sopts = append(sopts, resource.WithCPUReader(e.opts.cpuReader))
	}
	if e.opts.gpuReader != nil {
		sopts = append(sopts, resource.WithGPUReader(e.opts.gpuReader))
	}

	// The sampler outlives cancellation of the caller's context; Stop ends it.
	samplerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancelSampler = cancel
	e.sampler = resource.NewSampler(samplerCtx, resource.Config{
		Interval:   e.cfg.SampleInterval,
		CPUEnabled: e.cfg.EnableCPUMonitoring,
		GPUEnabled: e.cfg.EnableGPUMonitoring,
	}, e.agg, e.tracker, e.latest, e.diags, e.base, sopts...)

	e.samplerDone = make(chan struct{})
	go func() {
		defer close(e.samplerDone)
		defer pserrors.LogPanic(e.logger, "resource sampler")
		_ = e.sampler.Run(samplerCtx)
	}()

	e.logger.Info().
		Int("sample_size", e.cfg.SampleSize).
		Int("expected_size", e.cfg.ExpectedSize).
		Bool("cpu", e.sampler.CPUAvailable()).
		Bool("gpu", e.sampler.GPUAvailable()).
		Msg("Profiling started")
}

// Stop finalizes the session and returns its result. Later calls return the same
// result. When an output directory is configured the run is written there; write
// failures are logged and never prevent returning the result.
func (e *Engine) Stop() *result.Result {
	e.stopOnce.Do(e.stop)
	return e.result
}

func (e *Engine) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	e.tracker.Disable()
	end := e.now()

	if e.cancelSampler != nil {
		e.cancelSampler()
		<-e.samplerDone
	}

	start := e.start
	if !e.started {
		start = end
	}
	counters := e.tracker.Counters()
	e.agg.Freeze()

	in := result.Input{
		RunID:            e.runID,
		Version:          version.Version,
		GoVersion:        version.GoVersion,
		Start:            start,
		End:              end,
		SampleSize:       e.cfg.SampleSize,
		ExpectedSize:     e.cfg.ExpectedSize,
		Snapshot:         e.agg.Snapshot(),
		DroppedEvents:    counters.DroppedExits,
		DiscardedFrames:  counters.DiscardedFrames,
		IncompleteFrames: counters.OpenFrames,
	}
	if e.sampler != nil {
		in.CPUAvailable = e.sampler.CPUAvailable()
		in.GPUAvailable = e.sampler.GPUAvailable()
		in.ResourceSamples = e.sampler.Ticks()
	}
	in.Diagnostics = e.diags.Entries()

	e.result = result.Build(in)
	md := e.result.Metadata
	e.logger.Info().
		Float64("duration_ms", md.ProfilingDurationMs).
		Int("functions", md.TotalFunctionsTracked).
		Bool("extrapolation", md.ExtrapolationAvailable).
		Int64("incomplete_frames", md.IncompleteFrames).
		Msg("Profiling stopped")

	if e.cfg.OutputDir != "" {
		func() {
			defer pserrors.LogPanic(e.logger, "output writers")
			e.runDir = e.writeOutputs(e.result, end)
		}()
	}
	if e.logs != nil {
		_ = e.logs.Close()
	}
}

// RunID returns the identifier of the session.
func (e *Engine) RunID() string {
	return e.runID
}

// RunDir returns the directory the run was written to, or "" before Stop or when
// nothing was written.
func (e *Engine) RunDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runDir
}

// Result returns the finalized result, or nil before Stop.
func (e *Engine) Result() *result.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() config.Config {
	return e.cfg
}
