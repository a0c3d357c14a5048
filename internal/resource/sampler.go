package resource

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/diag"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Diagnostic keys emitted by the sampler.
const (
	DiagCPUUnavailable = "cpu_unavailable"
	DiagGPUUnavailable = "gpu_unavailable"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 100 * time.Millisecond

// CPUReader reads process CPU and memory.
type CPUReader interface {
	Read(ctx context.Context) (CPUReading, error)
}

// GPUReader reads GPU utilization and memory.
type GPUReader interface {
	Read(ctx context.Context) (GPUReading, error)
}

// TopSource exposes the identity on top of every active logical thread.
// Implementations must not block.
type TopSource interface {
	ActiveTops(dst []stats.Identity) []stats.Identity
}

// Config configures which metrics are sampled.
type Config struct {
	Interval   time.Duration
	CPUEnabled bool
	GPUEnabled bool
}

// Sampler periodically reads process metrics, publishes the latest sample, and
// attributes it to the active frames. It never touches call stacks directly.
type Sampler struct {
	config Config
	agg    *stats.Aggregator
	tops   TopSource
	latest *Latest
	diags  *diag.Diagnostics
	logger zerolog.Logger

	cpu CPUReader
	gpu GPUReader

	cpuOK atomic.Bool
	gpuOK atomic.Bool
	ticks atomic.Int64

	topsBuf []stats.Identity
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithCPUReader overrides the default gopsutil process reader.
func WithCPUReader(r CPUReader) Option {
	return func(s *Sampler) { s.cpu = r }
}

// WithGPUReader overrides the default nvidia-smi reader.
func WithGPUReader(r GPUReader) Option {
	return func(s *Sampler) { s.gpu = r }
}

// NewSampler creates a sampler. Readers that cannot be created are reported once
// through diags and their metrics are omitted for the run.
func NewSampler(
	ctx context.Context,
	config Config,
	agg *stats.Aggregator,
	tops TopSource,
	latest *Latest,
	diags *diag.Diagnostics,
	logger zerolog.Logger,
	opts ...Option,
) *Sampler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if latest == nil {
		latest = &Latest{}
	}

	s := &Sampler{
		config: config,
		agg:    agg,
		tops:   tops,
		latest: latest,
		diags:  diags,
		logger: logger.With().Str("component", "resource_sampler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.CPUEnabled {
		if s.cpu == nil {
			reader, err := NewProcessReader(ctx)
			if err != nil {
				s.diags.OnceErr(DiagCPUUnavailable, "CPU and memory monitoring unavailable; fields omitted for this run", err)
			} else {
				s.cpu = reader
			}
		}
		s.cpuOK.Store(s.cpu != nil)
	}

	if config.GPUEnabled {
		if s.gpu == nil {
			reader, err := NewNvidiaSMI()
			if err != nil {
				s.diags.OnceErr(DiagGPUUnavailable, "GPU monitoring unavailable; GPU fields omitted for this run", err)
			} else {
				s.gpu = reader
			}
		}
		s.gpuOK.Store(s.gpu != nil)
	}

	return s
}

// Run samples immediately and then on every tick until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	if !s.cpuOK.Load() && !s.gpuOK.Load() {
		s.logger.Debug().Msg("No resource metrics enabled, sampler idle")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Debug().
		Dur("interval", s.config.Interval).
		Bool("cpu", s.cpuOK.Load()).
		Bool("gpu", s.gpuOK.Load()).
		Msg("Starting resource sampler")

	s.SampleOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Int64("ticks", s.ticks.Load()).Msg("Stopping resource sampler")
			return ctx.Err()
		case <-ticker.C:
			s.SampleOnce(ctx)
		}
	}
}

// SampleOnce takes one reading, publishes it, and attributes it. It returns the
// sample, or nil when nothing could be measured.
func (s *Sampler) SampleOnce(ctx context.Context) *Sample {
	sample := s.read(ctx)
	if sample == nil {
		return nil
	}
	s.ticks.Add(1)
	s.latest.Store(sample)
	s.attribute(sample)
	return sample
}

func (s *Sampler) read(ctx context.Context) *Sample {
	sample := &Sample{At: time.Now()}
	measured := false

	if s.cpuOK.Load() {
		reading, err := s.cpu.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.cpuOK.Store(false)
				s.diags.OnceErr(DiagCPUUnavailable, "CPU and memory monitoring unavailable; fields omitted for this run", err)
			}
		} else {
			cpu, mem := reading.CPUPercent, reading.MemoryMB
			sample.CPUPercent = &cpu
			sample.MemoryMB = &mem
			measured = true
		}
	}

	if s.gpuOK.Load() {
		reading, err := s.gpu.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.gpuOK.Store(false)
				s.diags.OnceErr(DiagGPUUnavailable, "GPU monitoring unavailable; GPU fields omitted for this run", err)
			}
		} else {
			util, mem := reading.UtilizationPercent, reading.MemoryMB
			sample.GPUUtilization = &util
			sample.GPUMemoryMB = &mem
			measured = true
		}
	}

	if !measured {
		return nil
	}
	return sample
}

// attribute credits the full sample to each distinct top identity, or to the idle
// bucket when no thread has an active frame.
func (s *Sampler) attribute(sample *Sample) {
	rs := sample.ToStats()

	var tops []stats.Identity
	if s.tops != nil {
		tops = s.tops.ActiveTops(s.topsBuf[:0])
		s.topsBuf = tops
	}

	if len(tops) == 0 {
		s.agg.RecordResourceSample(stats.IdleIdentity, rs)
		return
	}

	seen := make(map[stats.Identity]struct{}, len(tops))
	for _, id := range tops {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s.agg.RecordResourceSample(id, rs)
	}
}

// Latest returns the most recently published sample.
func (s *Sampler) Latest() *Sample {
	return s.latest.Load()
}

// CPUAvailable reports whether CPU/memory readings are still being taken.
func (s *Sampler) CPUAvailable() bool {
	return s.cpuOK.Load()
}

// GPUAvailable reports whether GPU readings are still being taken.
func (s *Sampler) GPUAvailable() bool {
	return s.gpuOK.Load()
}

// Ticks returns the number of samples taken so far.
func (s *Sampler) Ticks() int64 {
	return s.ticks.Load()
}
