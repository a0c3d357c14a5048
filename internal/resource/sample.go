// Package resource samples process CPU, memory, and GPU usage on a fixed interval
// and attributes each sample to the frames active at sample time.
package resource

import (
	"sync/atomic"
	"time"

	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Sample is one process-level reading. Nil fields were not measured.
type Sample struct {
	At             time.Time
	CPUPercent     *float64
	MemoryMB       *float64
	GPUUtilization *float64
	GPUMemoryMB    *float64
}

// ToStats converts the sample into the aggregator's attribution form.
func (s *Sample) ToStats() stats.ResourceSample {
	if s == nil {
		return stats.ResourceSample{}
	}
	return stats.ResourceSample{
		CPUPercent:     s.CPUPercent,
		MemoryMB:       s.MemoryMB,
		GPUUtilization: s.GPUUtilization,
		GPUMemoryMB:    s.GPUMemoryMB,
	}
}

// MemoryDeltaMB returns exit minus entry resident memory, or nil when either side
// lacks a memory reading.
func MemoryDeltaMB(entry, exit *Sample) *float64 {
	if entry == nil || exit == nil || entry.MemoryMB == nil || exit.MemoryMB == nil {
		return nil
	}
	d := *exit.MemoryMB - *entry.MemoryMB
	return &d
}

// Latest holds the most recent sample. The sampler stores into it and the call
// stack tracker loads from it when pushing frames; both are single atomic operations.
type Latest struct {
	p atomic.Pointer[Sample]
}

// Load returns the most recent sample, or nil before the first tick.
func (l *Latest) Load() *Sample {
	if l == nil {
		return nil
	}
	return l.p.Load()
}

// Store publishes s as the most recent sample.
func (l *Latest) Store(s *Sample) {
	l.p.Store(s)
}

// CPUReading is a process CPU and resident memory reading.
type CPUReading struct {
	CPUPercent float64
	MemoryMB   float64
}

// GPUReading is an aggregate GPU reading across all visible devices.
type GPUReading struct {
	UtilizationPercent float64
	MemoryMB           float64
	Devices            int
}
