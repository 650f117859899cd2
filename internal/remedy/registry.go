// Package remedy maps fault kinds to remediation actions and runs them with
// failure containment.
package remedy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// DefaultTimeout bounds a single remediation run.
const DefaultTimeout = 60 * time.Second

var (
	// ErrNoAction is reported when no action is registered for a kind.
	ErrNoAction = errors.New("no remediation registered")
	// ErrInvalidAction is returned by Register for an empty kind or nil action.
	ErrInvalidAction = errors.New("invalid remediation")
)

// Action remediates a fault. Returning an error is equivalent to returning
// a failed Result carrying the error text. Actions must return promptly once
// ctx is done; the engine abandons ones that do not when it shuts down.
type Action func(ctx context.Context, sig fault.Signal) (fault.Result, error)

// Registry is a lookup table from kind to action. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[fault.Kind]Action

	// Timeout bounds each Run. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[fault.Kind]Action)}
}

// Register installs action for kind, replacing any previous one.
func (r *Registry) Register(kind fault.Kind, action Action) error {
	if kind == "" || action == nil {
		return fmt.Errorf("registering %q: %w", kind, ErrInvalidAction)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[kind] = action
	return nil
}

// Lookup returns the action for kind.
func (r *Registry) Lookup(kind fault.Kind) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[kind]
	return a, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []fault.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]fault.Kind, 0, len(r.actions))
	for k := range r.actions {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Run looks up and executes the action for kind. It never returns an error
// or panics: lookup misses, action errors, panics and deadline expiry all
// become failed results.
func (r *Registry) Run(ctx context.Context, kind fault.Kind, sig fault.Signal) fault.Result {
	action, ok := r.Lookup(kind)
	if !ok {
		return fault.Result{Message: fmt.Errorf("%s: %w", kind, ErrNoAction).Error()}
	}
	return r.invoke(ctx, kind, action, sig)
}

func (r *Registry) invoke(ctx context.Context, kind fault.Kind, action Action, sig fault.Signal) (res fault.Result) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			slog.Error("remediation panicked", "kind", kind, "panic", p)
			res = fault.Result{Message: fmt.Sprintf("remediation panicked: %v", p)}
		}
	}()

	res, err := action(ctx, sig)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fault.Result{Message: fmt.Sprintf("remediation timed out after %s", timeout)}
	case err != nil:
		return fault.Result{Message: err.Error()}
	}
	return res
}
