// Package governor bounds how many remediation tasks run at once.
package governor

import (
	"sort"
	"sync"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// DefaultMax is the default number of concurrent tasks.
const DefaultMax = 3

// Governor holds the set of admitted, unreleased tasks. Admission is a
// non-blocking check-and-add; rejected work is not queued.
// Safe for concurrent use.
type Governor struct {
	mu     sync.Mutex
	max    int
	limit  int
	active map[string]fault.Task
	now    func() time.Time
}

// New creates a governor admitting at most max tasks. A non-positive max
// uses DefaultMax.
func New(max int) *Governor {
	if max <= 0 {
		max = DefaultMax
	}
	return &Governor{
		max:    max,
		limit:  max,
		active: make(map[string]fault.Task),
		now:    time.Now,
	}
}

// TryAdmit adds task to the active set if there is capacity. On success the
// task is marked running and its start time set.
func (g *Governor) TryAdmit(task *fault.Task) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.active) >= g.limit {
		return false
	}
	if _, dup := g.active[task.ID]; dup {
		return false
	}
	task.Status = fault.StatusRunning
	task.StartedAt = g.now()
	g.active[task.ID] = *task
	return true
}

// Release removes an admitted task. It reports false if id was not active,
// which indicates a double release.
func (g *Governor) Release(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[id]; !ok {
		return false
	}
	delete(g.active, id)
	return true
}

// Len returns the number of active tasks.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Active returns a snapshot of active tasks, oldest first.
func (g *Governor) Active() []fault.Task {
	g.mu.Lock()
	out := make([]fault.Task, 0, len(g.active))
	for _, t := range g.active {
		out = append(out, t)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Limit returns the current admission limit.
func (g *Governor) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// Max returns the configured maximum.
func (g *Governor) Max() int {
	return g.max
}

// Reduce sets the admission limit to half the configured maximum, never
// below one, and returns it. Repeated calls leave the limit unchanged.
// Running tasks are unaffected; only new admissions are held back.
func (g *Governor) Reduce() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.limit = max(g.max/2, 1)
	return g.limit
}

// Restore returns the admission limit to the configured maximum.
func (g *Governor) Restore() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = g.max
	return g.limit
}
