package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/setevik/autoheal/internal/config"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{300 * time.Millisecond, "0s"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 3*time.Second, "5m 3s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{50 * time.Hour, "2d 2h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWatchdogInterval(t *testing.T) {
	t.Setenv("WATCHDOG_PID", "")
	t.Setenv("WATCHDOG_USEC", "")
	if got := watchdogInterval(); got != 0 {
		t.Errorf("unset = %v, want 0", got)
	}

	t.Setenv("WATCHDOG_USEC", "30000000")
	if got := watchdogInterval(); got != 30*time.Second {
		t.Errorf("watchdogInterval = %v, want 30s", got)
	}

	t.Setenv("WATCHDOG_USEC", "garbage")
	if got := watchdogInterval(); got != 0 {
		t.Errorf("invalid = %v, want 0", got)
	}

	t.Setenv("WATCHDOG_USEC", "30000000")
	t.Setenv("WATCHDOG_PID", "1")
	if os.Getpid() != 1 {
		if got := watchdogInterval(); got != 0 {
			t.Errorf("other pid = %v, want 0", got)
		}
	}
	t.Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))
	if got := watchdogInterval(); got != 30*time.Second {
		t.Errorf("own pid = %v, want 30s", got)
	}
}

func TestSdNotify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	defer conn.Close()

	t.Setenv("NOTIFY_SOCKET", path)
	sdNotify("READY=1")

	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "READY=1" {
		t.Errorf("state = %q, want READY=1", got)
	}
}

func TestBuildSourcesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{{
		Type:  config.SourceFile,
		Paths: []string{filepath.Join(dir, "app.log")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources, err := buildSources(ctx, cfg, dir)
	if err != nil {
		t.Fatalf("buildSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(sources))
	}
	if sources[0].Name() != "file-0" {
		t.Errorf("Name = %q, want generated name", sources[0].Name())
	}
}

func TestBuildSourcesUnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{{Name: "q", Type: "kafka"}}

	if _, err := buildSources(context.Background(), cfg, t.TempDir()); err == nil {
		t.Error("expected error for unknown source type")
	}
}
