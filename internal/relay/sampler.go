package relay

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSampler reads the process's resident memory and CPU usage. CPU is a
// percentage over the interval since the previous Sample call, so callers
// should sample at a stable cadence for comparable numbers.
type ResourceSampler struct {
	proc *process.Process
}

func NewResourceSampler() (*ResourceSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ResourceSampler{proc: proc}, nil
}

// Sample returns resident set size in MB and CPU percent since the last call.
func (s *ResourceSampler) Sample() (memoryMB, cpuPct float64, err error) {
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPct, err = s.proc.Percent(0)
	if err != nil {
		return 0, 0, err
	}
	return float64(memInfo.RSS) / 1024 / 1024, cpuPct, nil
}
