package resource

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NvidiaSMI reads aggregate GPU utilization and memory by shelling out to nvidia-smi.
type NvidiaSMI struct {
	path string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewNvidiaSMI locates nvidia-smi on PATH.
func NewNvidiaSMI() (*NvidiaSMI, error) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi not available: %w", err)
	}
	return &NvidiaSMI{path: path, run: runCommand}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	//nolint:gosec // G204: binary path comes from exec.LookPath and args are constant.
	return exec.CommandContext(ctx, name, args...).Output()
}

// Read queries every visible device and aggregates: mean utilization, summed memory.
func (n *NvidiaSMI) Read(ctx context.Context) (GPUReading, error) {
	out, err := n.run(ctx, n.path,
		"--query-gpu=utilization.gpu,memory.used",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		return GPUReading{}, fmt.Errorf("nvidia-smi query failed: %w", err)
	}
	return parseNvidiaSMI(string(out))
}

// parseNvidiaSMI parses lines of "<util>, <memory MiB>".
func parseNvidiaSMI(out string) (GPUReading, error) {
	var reading GPUReading
	var utilSum float64

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return GPUReading{}, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		util, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return GPUReading{}, fmt.Errorf("invalid GPU utilization %q: %w", fields[0], err)
		}
		mem, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return GPUReading{}, fmt.Errorf("invalid GPU memory %q: %w", fields[1], err)
		}
		utilSum += util
		reading.MemoryMB += mem
		reading.Devices++
	}

	if reading.Devices == 0 {
		return GPUReading{}, fmt.Errorf("no GPUs reported by nvidia-smi")
	}
	reading.UtilizationPercent = utilSum / float64(reading.Devices)
	return reading, nil
}
