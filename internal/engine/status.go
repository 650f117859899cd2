package engine

import (
	"time"

	"github.com/setevik/autoheal/internal/cache"
	"github.com/setevik/autoheal/internal/fault"
	"github.com/setevik/autoheal/internal/metrics"
)

// State is the scan loop's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// TaskInfo describes an active remediation.
type TaskInfo struct {
	ID        string     `json:"id"`
	Kind      fault.Kind `json:"kind"`
	Signal    string     `json:"signal"`
	StartedAt time.Time  `json:"startedAt"`
	Status    string     `json:"status"`
}

// Status is a read-only snapshot for reporting tools.
type Status struct {
	State              string           `json:"state"`
	IsRunning          bool             `json:"isRunning"`
	Metrics            metrics.Snapshot `json:"metrics"`
	ActiveTasks        []TaskInfo       `json:"activeTasks"`
	ConcurrencyLimit   int              `json:"concurrencyLimit"`
	MaxConcurrentTasks int              `json:"maxConcurrentTasks"`
	CacheEntries       int              `json:"cacheEntries"`
	Cache              cache.Stats      `json:"cache"`
	MemoryPressure     bool             `json:"memoryPressure"`
	CPUPressure        bool             `json:"cpuPressure"`
	HostMemoryPSI      float64          `json:"hostMemoryPSI"`
	MaxMemoryMB        float64          `json:"maxMemoryMB,omitempty"`
	MaxCPUPercent      float64          `json:"maxCPUPercent,omitempty"`
	LastTick           time.Time        `json:"lastTick"`
	Ticks              int64            `json:"ticks"`
	Deferred           int64            `json:"deferred"`
	TickErrors         int64            `json:"tickErrors"`
	RegisteredKinds    []fault.Kind     `json:"registeredKinds"`
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		State:      e.state.String(),
		IsRunning:  e.state == StateRunning,
		LastTick:   e.lastTick,
		Ticks:      e.ticks,
		Deferred:   e.deferred,
		TickErrors: e.tickErrors,
	}
	e.mu.Unlock()

	st.Metrics = e.metrics.Snapshot()
	st.ConcurrencyLimit = e.governor.Limit()
	st.MaxConcurrentTasks = e.governor.Max()
	st.CacheEntries = e.cache.Len()
	st.Cache = e.cache.Stats()
	st.RegisteredKinds = e.registry.Kinds()
	st.HostMemoryPSI = -1

	active := e.governor.Active()
	st.ActiveTasks = make([]TaskInfo, 0, len(active))
	for _, t := range active {
		st.ActiveTasks = append(st.ActiveTasks, TaskInfo{
			ID:        t.ID,
			Kind:      t.Kind,
			Signal:    t.Signal.Text,
			StartedAt: t.StartedAt,
			Status:    string(t.Status),
		})
	}

	if e.resources != nil {
		rs := e.resources.State()
		st.MemoryPressure = rs.MemoryPressure
		st.CPUPressure = rs.CPUPressure
		st.MaxMemoryMB = e.resources.MaxMemoryMB()
		st.MaxCPUPercent = e.resources.MaxCPUPercent()
		if !rs.Last.Timestamp.IsZero() {
			st.HostMemoryPSI = rs.Last.HostMemorySomeAvg10
		}
	}
	return st
}

// Collector returns a Prometheus collector over the engine's metrics.
func (e *Engine) Collector() *metrics.Collector {
	return metrics.NewCollector(e.metrics, metrics.Gauges{
		ActiveTasks:      e.governor.Len,
		ConcurrencyLimit: e.governor.Limit,
		CacheEntries:     e.cache.Len,
	})
}
