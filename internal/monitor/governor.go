// Package monitor samples the engine's own memory and CPU usage and applies
// soft mitigations when configured ceilings are exceeded.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for the resource ceilings and sampling interval.
const (
	DefaultInterval      = 10 * time.Second
	DefaultMaxMemoryMB   = 100
	DefaultMaxCPUPercent = 50
)

// Mitigations are invoked by the ResourceGovernor. Any may be nil. They run
// on the governor's goroutine and must be idempotent: every over-ceiling
// sample invokes them again.
type Mitigations struct {
	// OnSample receives every successful sample.
	OnSample func(Sample)
	// OnMemoryPressure runs for each sample above the memory ceiling.
	OnMemoryPressure func(Sample)
	// OnCPUPressure runs for each sample above the CPU ceiling.
	OnCPUPressure func(Sample)
	// OnCPURecovered runs once when CPU drops back under the ceiling.
	OnCPURecovered func(Sample)
}

// State reports the governor's current pressure flags.
type State struct {
	MemoryPressure bool
	CPUPressure    bool
	Last           Sample
	Failures       int64
}

// ResourceGovernor periodically samples resource usage. Memory and CPU
// pressure are tracked independently and may be active at the same time.
// It never terminates the process.
type ResourceGovernor struct {
	interval      time.Duration
	maxMemoryMB   float64
	maxCPUPercent float64
	sampler       Sampler
	mitigations   Mitigations

	mu    sync.Mutex
	state State
}

// NewResourceGovernor creates a governor. Non-positive settings fall back to
// the package defaults.
func NewResourceGovernor(interval time.Duration, maxMemoryMB, maxCPUPercent float64, sampler Sampler, m Mitigations) *ResourceGovernor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxMemoryMB <= 0 {
		maxMemoryMB = DefaultMaxMemoryMB
	}
	if maxCPUPercent <= 0 {
		maxCPUPercent = DefaultMaxCPUPercent
	}
	return &ResourceGovernor{
		interval:      interval,
		maxMemoryMB:   maxMemoryMB,
		maxCPUPercent: maxCPUPercent,
		sampler:       sampler,
		mitigations:   m,
	}
}

// Run samples on every interval until ctx is done.
func (g *ResourceGovernor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Check(ctx)
		}
	}
}

// Check takes one sample and applies mitigations. Sampling failures are
// logged and the cycle is skipped.
func (g *ResourceGovernor) Check(ctx context.Context) {
	sample, err := g.sampler.Sample(ctx)
	if err != nil {
		g.mu.Lock()
		g.state.Failures++
		g.mu.Unlock()
		slog.Warn("resource sampling failed", "error", err)
		return
	}

	memHigh := sample.MemoryMB() > g.maxMemoryMB
	cpuHigh := sample.CPUPercent > g.maxCPUPercent

	g.mu.Lock()
	prev := g.state
	g.state.MemoryPressure = memHigh
	g.state.CPUPressure = cpuHigh
	g.state.Last = sample
	g.mu.Unlock()

	if m := g.mitigations.OnSample; m != nil {
		m(sample)
	}

	switch {
	case memHigh && !prev.MemoryPressure:
		slog.Warn("memory ceiling exceeded",
			"memory_mb", sample.MemoryMB(),
			"max_memory_mb", g.maxMemoryMB,
		)
	case !memHigh && prev.MemoryPressure:
		slog.Info("memory usage back under ceiling", "memory_mb", sample.MemoryMB())
	}
	if memHigh && g.mitigations.OnMemoryPressure != nil {
		g.mitigations.OnMemoryPressure(sample)
	}

	switch {
	case cpuHigh && !prev.CPUPressure:
		slog.Warn("cpu ceiling exceeded",
			"cpu_percent", sample.CPUPercent,
			"max_cpu_percent", g.maxCPUPercent,
		)
	case !cpuHigh && prev.CPUPressure:
		slog.Info("cpu usage back under ceiling", "cpu_percent", sample.CPUPercent)
		if g.mitigations.OnCPURecovered != nil {
			g.mitigations.OnCPURecovered(sample)
		}
	}
	if cpuHigh && g.mitigations.OnCPUPressure != nil {
		g.mitigations.OnCPUPressure(sample)
	}
}

// MaxMemoryMB returns the effective memory ceiling.
func (g *ResourceGovernor) MaxMemoryMB() float64 { return g.maxMemoryMB }

// MaxCPUPercent returns the effective CPU ceiling.
func (g *ResourceGovernor) MaxCPUPercent() float64 { return g.maxCPUPercent }

// State returns the current pressure flags and last sample.
func (g *ResourceGovernor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
