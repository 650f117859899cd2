package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/setevik/autoheal/internal/api"
	"github.com/setevik/autoheal/internal/config"
	"github.com/setevik/autoheal/internal/engine"
	"github.com/setevik/autoheal/internal/metrics"
	"github.com/setevik/autoheal/internal/monitor"
	"github.com/setevik/autoheal/internal/reporter"
	"github.com/setevik/autoheal/internal/source"
	"github.com/setevik/autoheal/internal/store"
)

// drainTimeout bounds how long shutdown waits for running remediations.
const drainTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the remediation daemon",
	Long: `Start the scan loop. Signals are read from the configured sources,
classified, and remediated until SIGINT or SIGTERM.

Running remediations are given 30s to finish on shutdown before their
contexts are cancelled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level, cfg.Log.JSON)

		slog.Info("autoheal starting",
			"version", version,
			"instance", cfg.Instance.ID,
		)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	dataDir, err := dataDirectory(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath(), cfg.Instance.ID)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer db.Close()
	slog.Info("history database opened", "path", cfg.DBPath())
	purge(db, cfg.DB.Retention.Duration)

	cls, err := cfg.Classifier()
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("building remediation registry: %w", err)
	}
	if len(registry.Kinds()) == 0 {
		slog.Warn("no remediations configured, faults will only be counted")
	}

	sources, err := buildSources(ctx, cfg, dataDir)
	if err != nil {
		return err
	}

	var sampler monitor.Sampler
	if cfg.Engine.ResourceGovernor {
		ps, err := monitor.NewProcSampler()
		if err != nil {
			slog.Warn("resource governor disabled, procfs unavailable", "error", err)
		} else {
			sampler = ps
		}
	}

	eng, err := engine.New(cfg.EngineSettings(), engine.Deps{
		Sources:    sources,
		Classifier: cls,
		Registry:   registry,
		Sampler:    sampler,
		Recorder:   db,
		Notifier:   reporter.NewNtfy(cfg, db),
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg, eng.Collector()); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTP.Listen != "" {
		srv := api.NewServer(cfg.HTTP.Listen, eng, db, reg)
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		housekeeping(gctx, db, cfg.DB.Retention.Duration)
		return nil
	})

	sdNotify("READY=1")
	slog.Info("scan loop running", "sources", len(sources), "remediations", len(registry.Kinds()))

	<-gctx.Done()
	sdNotify("STOPPING=1")
	slog.Info("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	stopErr := eng.Stop(drainCtx)

	if err := g.Wait(); err != nil {
		return err
	}
	return stopErr
}

// housekeeping pings the systemd watchdog and purges old history until ctx
// is done.
func housekeeping(ctx context.Context, db *store.DB, retention time.Duration) {
	var watchdogCh <-chan time.Time
	if wdInterval := watchdogInterval(); wdInterval > 0 {
		// Ping at half the watchdog interval.
		t := time.NewTicker(wdInterval / 2)
		defer t.Stop()
		watchdogCh = t.C
		slog.Info("systemd watchdog enabled", "interval", wdInterval)
	}

	purgeTicker := time.NewTicker(24 * time.Hour)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdogCh:
			sdNotify("WATCHDOG=1")
		case <-purgeTicker.C:
			purge(db, retention)
		}
	}
}

func purge(db *store.DB, retention time.Duration) {
	if retention <= 0 {
		return
	}
	purged, err := db.Purge(retention)
	if err != nil {
		slog.Warn("failed to purge old remediations", "error", err)
	} else if purged > 0 {
		slog.Info("purged old remediations", "count", purged, "retention", retention)
	}
}

// buildSources creates the configured signal sources. With none configured
// the systemd journal is followed at error priority.
func buildSources(ctx context.Context, cfg *config.Config, dataDir string) ([]engine.Source, error) {
	specs := cfg.Sources
	if len(specs) == 0 {
		specs = []config.SourceConfig{{Name: "journal", Type: config.SourceJournal}}
	}

	var out []engine.Source
	for i, sc := range specs {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", sc.Type, i)
		}

		switch sc.Type {
		case config.SourceFile:
			fs, err := source.NewFileSource(name, sc.Paths, sc.MaxLines, sc.FromStart)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", name, err)
			}
			if err := fs.Watch(ctx); err != nil {
				// Polling still works without change notifications.
				slog.Warn("file watch unavailable, polling every file", "source", name, "error", err)
			}
			out = append(out, fs)

		case config.SourceJournal:
			cursor := sc.CursorFile
			if cursor == "" {
				cursor = filepath.Join(dataDir, name+"-cursor")
			}
			units, priority := sc.Units, sc.Priority
			stream := source.NewSupervisedStream(func() source.Stream {
				return source.NewJournalStream(units, priority, cursor)
			}, 5*time.Second, 0)

			buf := source.NewBuffer(name, stream, sc.BufferSize)
			if err := buf.Start(ctx); err != nil {
				return nil, fmt.Errorf("source %s: %w", name, err)
			}
			out = append(out, buf)

		default:
			return nil, fmt.Errorf("source %s: unknown type %q", name, sc.Type)
		}
	}
	return out, nil
}
