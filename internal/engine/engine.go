// Package engine runs the scan loop: it polls signal sources, classifies
// each signal through the diagnosis cache, and dispatches remediations under
// the concurrency governor while the resource governor sheds load.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/setevik/autoheal/internal/cache"
	"github.com/setevik/autoheal/internal/classifier"
	"github.com/setevik/autoheal/internal/fault"
	"github.com/setevik/autoheal/internal/governor"
	"github.com/setevik/autoheal/internal/metrics"
	"github.com/setevik/autoheal/internal/monitor"
	"github.com/setevik/autoheal/internal/remedy"
)

// ErrAlreadyRunning is returned by Start unless the engine is stopped.
var ErrAlreadyRunning = errors.New("engine already running")

const (
	// DefaultScanInterval is used when Config.ScanInterval is not positive.
	DefaultScanInterval = 30 * time.Second

	// maxCarryOver caps the signals deferred by a full governor that are
	// retried on the next tick.
	maxCarryOver = 1024

	// defaultDrainGrace bounds the wait for remediations after their
	// contexts have been cancelled.
	defaultDrainGrace = 5 * time.Second
)

// Source produces signals. Poll is called once per tick and must not block
// indefinitely.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]fault.Signal, error)
}

// Recorder persists finished tasks.
type Recorder interface {
	Record(ctx context.Context, task fault.Task) error
}

// Notifier is told about finished tasks.
type Notifier interface {
	Notify(ctx context.Context, task fault.Task) error
}

// Config holds the engine's tunables.
type Config struct {
	ScanInterval          time.Duration
	ResourceCheckInterval time.Duration
	MaxMemoryMB           float64
	MaxCPUPercent         float64
	MaxConcurrentTasks    int
	CacheTTL              time.Duration
}

// Deps are the collaborators the engine consumes. Registry is required.
// A nil Classifier uses the built-in table; a nil Sampler disables the
// resource governor; Recorder and Notifier are optional.
type Deps struct {
	Sources    []Source
	Classifier *classifier.Classifier
	Registry   *remedy.Registry
	Sampler    monitor.Sampler
	Recorder   Recorder
	Notifier   Notifier
}

// Engine is the scan loop. It owns the diagnosis cache, the concurrency
// governor and the metrics for its lifetime.
type Engine struct {
	cfg        Config
	sources    []Source
	classifier *classifier.Classifier
	registry   *remedy.Registry
	recorder   Recorder
	notifier   Notifier

	cache     *cache.Cache
	governor  *governor.Governor
	metrics   *metrics.Metrics
	resources *monitor.ResourceGovernor

	inflight   errgroup.Group
	rejectLog  rate.Sometimes
	drainGrace time.Duration

	mu         sync.Mutex
	state      State
	cancelLoop context.CancelFunc
	loopWG     sync.WaitGroup
	runCtx     context.Context
	cancelRuns context.CancelFunc
	carry      []fault.Signal
	lastTick   time.Time
	ticks      int64
	deferred   int64
	tickErrors int64
}

// New builds an engine from cfg and deps.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("remediation registry is required")
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}

	cls := deps.Classifier
	if cls == nil {
		cls = classifier.Default()
	}

	e := &Engine{
		cfg:        cfg,
		sources:    deps.Sources,
		classifier: cls,
		registry:   deps.Registry,
		recorder:   deps.Recorder,
		notifier:   deps.Notifier,
		cache:      cache.New(cfg.CacheTTL),
		governor:   governor.New(cfg.MaxConcurrentTasks),
		metrics:    metrics.New(),
		rejectLog:  rate.Sometimes{Interval: 10 * time.Second},
		drainGrace: defaultDrainGrace,
	}
	e.runCtx, e.cancelRuns = context.WithCancel(context.Background())

	if deps.Sampler != nil {
		e.resources = monitor.NewResourceGovernor(
			cfg.ResourceCheckInterval,
			cfg.MaxMemoryMB,
			cfg.MaxCPUPercent,
			deps.Sampler,
			monitor.Mitigations{
				OnSample:         e.recordSample,
				OnMemoryPressure: e.shedCache,
				OnCPUPressure:    e.shedConcurrency,
				OnCPURecovered:   e.restoreConcurrency,
			},
		)
	}
	return e, nil
}

// Start launches the scan loop and the resource governor. The first tick
// runs immediately. Start returns ErrAlreadyRunning unless the engine is
// stopped. Cancelling ctx halts ticking; Stop must still be called to
// drain in-flight remediations.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = StateStarting

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancelLoop = cancel
	e.runCtx, e.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))

	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		e.loop(loopCtx)
	}()
	if e.resources != nil {
		e.loopWG.Add(1)
		go func() {
			defer e.loopWG.Done()
			e.resources.Run(loopCtx)
		}()
	}

	e.state = StateRunning
	e.mu.Unlock()

	slog.Info("engine started",
		"scan_interval", e.cfg.ScanInterval,
		"sources", len(e.sources),
		"max_concurrent_tasks", e.governor.Max(),
		"resource_governor", e.resources != nil,
	)
	return nil
}

// Stop halts ticking and waits for in-flight remediations to finish. If ctx
// expires first, their contexts are cancelled and Stop waits up to a short
// grace period for them to return before reporting ctx's error. Actions that
// ignore cancellation are abandoned. Stopping a stopped engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	cancel := e.cancelLoop
	e.mu.Unlock()

	cancel()
	e.loopWG.Wait()

	drained := make(chan struct{})
	go func() {
		_ = e.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		slog.Warn("drain deadline reached, cancelling in-flight remediations",
			"active", e.governor.Len(),
		)
		e.cancelRemediations()
		grace := time.NewTimer(e.drainGrace)
		select {
		case <-drained:
		case <-grace.C:
			slog.Error("remediations ignored cancellation, abandoning them",
				"active", e.governor.Len(),
			)
		}
		grace.Stop()
		err = fmt.Errorf("draining remediations: %w", ctx.Err())
	}
	e.cancelRemediations()

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	slog.Info("engine stopped", "metrics", e.metrics.Snapshot())
	return err
}

func (e *Engine) cancelRemediations() {
	e.mu.Lock()
	cancel := e.cancelRuns
	e.mu.Unlock()
	cancel()
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one scan cycle. Remediations are launched without waiting for
// them. Nothing that goes wrong inside a tick escapes it.
func (e *Engine) Tick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			e.mu.Lock()
			e.tickErrors++
			e.mu.Unlock()
			slog.Error("scan tick failed", "panic", p)
		}
	}()

	if n := e.cache.Sweep(); n > 0 {
		slog.Debug("expired diagnoses evicted", "count", n)
	}

	e.mu.Lock()
	carried := e.carry
	e.carry = nil
	e.mu.Unlock()

	var deferred []fault.Signal
	defer func() {
		if len(deferred) > maxCarryOver {
			slog.Warn("deferred signals over carry-over limit, dropping oldest",
				"deferred", len(deferred),
				"limit", maxCarryOver,
			)
			deferred = deferred[len(deferred)-maxCarryOver:]
		}
		e.mu.Lock()
		e.carry = deferred
		e.mu.Unlock()
	}()

	seen := make(map[string]struct{})
	handle := func(sig fault.Signal) {
		key := cache.Key(sig.Text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		if e.handleSignal(sig) {
			deferred = append(deferred, sig)
		}
	}

	// Signals the governor turned away last tick go first.
	for _, sig := range carried {
		handle(sig)
	}
	for _, src := range e.sources {
		for _, sig := range e.poll(ctx, src) {
			handle(sig)
		}
	}

	e.mu.Lock()
	e.lastTick = time.Now()
	e.ticks++
	e.mu.Unlock()
}

func (e *Engine) poll(ctx context.Context, src Source) (signals []fault.Signal) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("signal source panicked", "source", src.Name(), "panic", p)
			signals = nil
		}
	}()

	signals, err := src.Poll(ctx)
	if err != nil {
		slog.Warn("polling signal source failed", "source", src.Name(), "error", err)
	}
	return signals
}

// handleSignal diagnoses sig and launches its remediation. It reports
// whether the governor turned the task away.
func (e *Engine) handleSignal(sig fault.Signal) (deferred bool) {
	started := false
	defer func() {
		if p := recover(); p != nil {
			if !started {
				e.metrics.OperationStarted()
			}
			e.metrics.OperationFailed()
			slog.Error("handling signal failed", "signal", sig.Text, "panic", p)
			deferred = false
		}
	}()

	cl := e.diagnose(sig.Text)
	if cl.IsUnknown() {
		return false
	}

	if _, ok := e.registry.Lookup(cl.Kind); !ok {
		started = true
		e.metrics.OperationStarted()
		e.metrics.OperationFailed()
		slog.Warn("no remediation registered", "kind", cl.Kind, "signal", sig.Text)
		return false
	}

	task := fault.NewTask(cl.Kind, sig)
	if !e.governor.TryAdmit(task) {
		e.mu.Lock()
		e.deferred++
		e.mu.Unlock()
		e.rejectLog.Do(func() {
			slog.Info("remediation deferred to next tick, concurrency limit reached",
				"kind", cl.Kind,
				"limit", e.governor.Limit(),
			)
		})
		return true
	}

	started = true
	e.metrics.OperationStarted()
	e.mu.Lock()
	runCtx := e.runCtx
	e.mu.Unlock()

	e.inflight.Go(func() error {
		e.remediate(runCtx, task)
		return nil
	})
	return false
}

// diagnose consults the cache before classifying.
func (e *Engine) diagnose(text string) fault.Classification {
	if cl, ok := e.cache.Get(text); ok {
		return cl
	}
	cl := e.classifier.Classify(text)
	e.cache.Put(text, cl, 0)
	return cl
}

func (e *Engine) remediate(ctx context.Context, task *fault.Task) {
	defer e.governor.Release(task.ID)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("remediation bookkeeping failed", "task", task.ID, "panic", p)
		}
	}()

	res := e.registry.Run(ctx, task.Kind, task.Signal)
	task.Finish(res, time.Now())

	if res.Success {
		e.metrics.OperationSucceeded()
		slog.Info("remediation succeeded",
			"task", task.ID,
			"kind", task.Kind,
			"duration", task.Duration(),
			"message", res.Message,
		)
	} else {
		e.metrics.OperationFailed()
		slog.Warn("remediation failed",
			"task", task.ID,
			"kind", task.Kind,
			"duration", task.Duration(),
			"message", res.Message,
		)
	}
	metrics.ObserveRemediation(string(task.Kind), task.Duration())

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, *task); err != nil {
			slog.Error("failed to record remediation", "task", task.ID, "error", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, *task); err != nil {
			slog.Error("failed to send notification", "task", task.ID, "error", err)
		}
	}
}

// wait blocks until all launched remediations have returned.
func (e *Engine) wait() {
	_ = e.inflight.Wait()
}

func (e *Engine) recordSample(s monitor.Sample) {
	e.metrics.SetResources(s.MemoryMB(), s.CPUPercent)
}

func (e *Engine) shedCache(s monitor.Sample) {
	n := e.cache.Clear()
	slog.Info("diagnosis cache cleared under memory pressure",
		"entries", n,
		"memory_mb", s.MemoryMB(),
	)
}

func (e *Engine) shedConcurrency(s monitor.Sample) {
	limit := e.governor.Reduce()
	slog.Info("concurrency reduced under cpu pressure",
		"limit", limit,
		"cpu_percent", s.CPUPercent,
	)
}

func (e *Engine) restoreConcurrency(monitor.Sample) {
	limit := e.governor.Restore()
	slog.Info("concurrency restored", "limit", limit)
}
