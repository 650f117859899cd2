// autoheal tails application logs, classifies faults by pattern, runs the
// configured remediation for each fault under a concurrency bound, and
// throttles itself when its own memory or CPU use exceeds its budget.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/setevik/autoheal/internal/config"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "autoheal",
	Short: "Self-healing log watcher",
	Long: `autoheal periodically scans log sources for known faults and runs the
remediation registered for each fault kind.

Run "autoheal run" to start the daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the default slog logger. Unknown levels fall back
// to info.
func setupLogging(level string, json bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if json {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// dataDirectory returns the directory holding the database and journal
// cursors, creating it if needed.
func dataDirectory(cfg *config.Config) (string, error) {
	dir := filepath.Dir(cfg.DBPath())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dir, nil
}
