// Package metrics holds the engine's process-wide counters and exports them
// to Prometheus.
package metrics

import (
	"math"
	"sync/atomic"
	"time"
)

// Metrics counts remediation operations and holds the latest resource
// readings. Counters are monotonic for the process lifetime. Safe for
// concurrent use.
type Metrics struct {
	startedAt time.Time

	totalOperations      atomic.Int64
	successfulOperations atomic.Int64
	failedOperations     atomic.Int64

	// float64 bits
	memoryUsageMB   atomic.Uint64
	cpuUsagePercent atomic.Uint64
}

// New creates a Metrics whose uptime is measured from now.
func New() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	TotalOperations      int64         `json:"totalOperations"`
	SuccessfulOperations int64         `json:"successfulOperations"`
	FailedOperations     int64         `json:"failedOperations"`
	MemoryUsageMB        float64       `json:"memoryUsageMB"`
	CPUUsagePercent      float64       `json:"cpuUsagePercent"`
	SystemUptime         time.Duration `json:"systemUptime"`
}

// OperationStarted counts an attempted remediation.
func (m *Metrics) OperationStarted() { m.totalOperations.Add(1) }

// OperationSucceeded counts a successful remediation.
func (m *Metrics) OperationSucceeded() { m.successfulOperations.Add(1) }

// OperationFailed counts a failed remediation.
func (m *Metrics) OperationFailed() { m.failedOperations.Add(1) }

// SetResources records the latest resource readings.
func (m *Metrics) SetResources(memoryMB, cpuPercent float64) {
	m.memoryUsageMB.Store(math.Float64bits(memoryMB))
	m.cpuUsagePercent.Store(math.Float64bits(cpuPercent))
}

// Uptime returns the time since New.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalOperations:      m.totalOperations.Load(),
		SuccessfulOperations: m.successfulOperations.Load(),
		FailedOperations:     m.failedOperations.Load(),
		MemoryUsageMB:        math.Float64frombits(m.memoryUsageMB.Load()),
		CPUUsagePercent:      math.Float64frombits(m.cpuUsagePercent.Load()),
		SystemUptime:         m.Uptime(),
	}
}
