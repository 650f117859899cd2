package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// Sample is one reading of the process's own resource usage.
type Sample struct {
	Timestamp time.Time
	// RSSBytes is the resident set size.
	RSSBytes int64
	// CPUPercent is CPU time consumed since the previous sample as a
	// percentage of one core. The first sample reports zero.
	CPUPercent float64
	// HostMemorySomeAvg10 is the host-wide memory PSI "some" avg10, or -1
	// when PSI is unavailable.
	HostMemorySomeAvg10 float64
}

// MemoryMB returns RSSBytes in mebibytes.
func (s Sample) MemoryMB() float64 {
	return float64(s.RSSBytes) / (1024 * 1024)
}

// Sampler reads process resource usage.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// ProcSampler samples the current process from procfs.
type ProcSampler struct {
	fs  procfs.FS
	now func() time.Time

	mu      sync.Mutex
	lastCPU float64
	lastAt  time.Time
}

// NewProcSampler creates a sampler over the default /proc mount.
func NewProcSampler() (*ProcSampler, error) {
	return NewProcSamplerAt(procfs.DefaultMountPoint)
}

// NewProcSamplerAt creates a sampler over a procfs mounted at mountPoint.
func NewProcSamplerAt(mountPoint string) (*ProcSampler, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("opening procfs at %s: %w", mountPoint, err)
	}
	return &ProcSampler{fs: fs, now: time.Now}, nil
}

// Sample reads /proc/self/stat and, if present, /proc/pressure/memory.
func (s *ProcSampler) Sample(_ context.Context) (Sample, error) {
	self, err := s.fs.Self()
	if err != nil {
		return Sample{}, fmt.Errorf("reading self: %w", err)
	}
	stat, err := self.Stat()
	if err != nil {
		return Sample{}, fmt.Errorf("reading process stat: %w", err)
	}

	now := s.now()
	cpu := stat.CPUTime()

	s.mu.Lock()
	var percent float64
	if !s.lastAt.IsZero() {
		percent = cpuPercent(s.lastCPU, cpu, now.Sub(s.lastAt))
	}
	s.lastCPU, s.lastAt = cpu, now
	s.mu.Unlock()

	sample := Sample{
		Timestamp:           now,
		RSSBytes:            int64(stat.ResidentMemory()),
		CPUPercent:          percent,
		HostMemorySomeAvg10: -1,
	}
	if psi, err := s.fs.PSIStatsForResource("memory"); err == nil && psi.Some != nil {
		sample.HostMemorySomeAvg10 = psi.Some.Avg10
	}
	return sample, nil
}

// cpuPercent converts consumed CPU seconds over a wall-clock interval into
// a percentage of one core.
func cpuPercent(prevSeconds, curSeconds float64, elapsed time.Duration) float64 {
	if elapsed <= 0 || curSeconds < prevSeconds {
		return 0
	}
	return (curSeconds - prevSeconds) / elapsed.Seconds() * 100
}
