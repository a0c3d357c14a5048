package resource

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/coral-mesh/pipelinescope/internal/safe"
)

const bytesPerMB = 1024 * 1024

// ProcessReader reads CPU percent and RSS of the current process using gopsutil.
type ProcessReader struct {
	proc *process.Process
}

// NewProcessReader opens the current process. The first CPU reading is primed here
// because gopsutil reports CPU percent relative to the previous call.
func NewProcessReader(ctx context.Context) (*ProcessReader, error) {
	//nolint:gosec // G115: PIDs fit in int32 on every supported platform.
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open current process: %w", err)
	}
	if _, err := proc.PercentWithContext(ctx, 0); err != nil {
		return nil, fmt.Errorf("failed to prime CPU percent: %w", err)
	}
	return &ProcessReader{proc: proc}, nil
}

// Read returns the process CPU percent since the previous call and current RSS.
func (r *ProcessReader) Read(ctx context.Context) (CPUReading, error) {
	cpu, err := r.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return CPUReading{}, fmt.Errorf("failed to get process CPU percent: %w", err)
	}

	mem, err := r.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return CPUReading{}, fmt.Errorf("failed to get process memory info: %w", err)
	}

	rss, _ := safe.Uint64ToInt64(mem.RSS)
	return CPUReading{
		CPUPercent: cpu,
		MemoryMB:   float64(rss) / bytesPerMB,
	}, nil
}
