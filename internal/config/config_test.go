package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Instance.ID == "" {
		t.Error("default instance ID should not be empty")
	}
	e := cfg.Engine
	if e.MaxMemoryMB != 100 {
		t.Errorf("default max_memory_mb = %v, want 100", e.MaxMemoryMB)
	}
	if e.MaxCPUPercent != 50 {
		t.Errorf("default max_cpu_percent = %v, want 50", e.MaxCPUPercent)
	}
	if e.ScanInterval.Duration != 30*time.Second {
		t.Errorf("default scan_interval = %v, want 30s", e.ScanInterval.Duration)
	}
	if e.ResourceCheckInterval.Duration != 10*time.Second {
		t.Errorf("default resource_check_interval = %v, want 10s", e.ResourceCheckInterval.Duration)
	}
	if e.MaxConcurrentTasks != 3 {
		t.Errorf("default max_concurrent_tasks = %d, want 3", e.MaxConcurrentTasks)
	}
	if e.CacheTTL.Duration != 30*time.Second {
		t.Errorf("default cache_ttl = %v, want 30s", e.CacheTTL.Duration)
	}
	if e.RemediationTimeout.Duration != 60*time.Second {
		t.Errorf("default remediation_timeout = %v, want 60s", e.RemediationTimeout.Duration)
	}
	if cfg.Cooldown.AggregateThreshold != 3 {
		t.Errorf("default aggregate threshold = %d, want 3", cfg.Cooldown.AggregateThreshold)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q, want %q", cfg.Log.Level, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("loading nonexistent config should return defaults, got error: %v", err)
	}
	if cfg.Engine.MaxConcurrentTasks != 3 {
		t.Errorf("max_concurrent_tasks = %d, want default 3", cfg.Engine.MaxConcurrentTasks)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[instance]
id = "web1"

[engine]
scan_interval = "5s"
max_concurrent_tasks = 5
max_memory_mb = 256

[[pattern]]
kind = "disk-full"
match = "No space left on device"

[[remediation]]
kind = "connection-refused"
type = "restart-unit"
unit = "postgresql.service"

[[remediation]]
kind = "disk-full"
command = ["/usr/local/bin/cleanup-tmp"]
timeout = "2m"

[[source]]
name = "app"
type = "file"
paths = ["/var/log/app/app.log"]
max_lines = 100

[[source]]
name = "journal"
type = "journal"
units = ["api.service"]

[ntfy]
url = "https://ntfy.sh/my-topic"
notify_on = "all"

[cooldown]
window = "10m"
aggregate_threshold = 5

[log]
level = "debug"
json = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Instance.ID != "web1" {
		t.Errorf("instance.id = %q, want %q", cfg.Instance.ID, "web1")
	}
	if cfg.Engine.ScanInterval.Duration != 5*time.Second {
		t.Errorf("scan_interval = %v, want 5s", cfg.Engine.ScanInterval.Duration)
	}
	if cfg.Engine.MaxConcurrentTasks != 5 {
		t.Errorf("max_concurrent_tasks = %d, want 5", cfg.Engine.MaxConcurrentTasks)
	}
	if cfg.Engine.MaxCPUPercent != 50 {
		t.Errorf("unset max_cpu_percent = %v, want default 50", cfg.Engine.MaxCPUPercent)
	}
	if len(cfg.Patterns) != 1 || cfg.Patterns[0].Kind != "disk-full" {
		t.Errorf("patterns = %+v", cfg.Patterns)
	}
	if len(cfg.Remediations) != 2 || cfg.Remediations[1].Timeout.Duration != 2*time.Minute {
		t.Errorf("remediations = %+v", cfg.Remediations)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Paths[0] != "/var/log/app/app.log" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if cfg.Ntfy.NotifyOn != NotifyAll {
		t.Errorf("ntfy.notify_on = %q", cfg.Ntfy.NotifyOn)
	}
	if cfg.Cooldown.Window.Duration != 10*time.Minute {
		t.Errorf("cooldown.window = %v, want 10m", cfg.Cooldown.Window.Duration)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("log = %+v", cfg.Log)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if kinds := reg.Kinds(); len(kinds) != 2 {
		t.Errorf("registered kinds = %v, want 2", kinds)
	}

	cls, err := cfg.Classifier()
	if err != nil {
		t.Fatalf("Classifier: %v", err)
	}
	if got := cls.Classify("write /data/x: No space left on device"); got.Kind != "disk-full" {
		t.Errorf("custom pattern kind = %q, want disk-full", got.Kind)
	}
	if got := cls.Classify("ECONNREFUSED"); got.Kind != fault.KindConnectionRefused {
		t.Errorf("built-in patterns should still apply, got %q", got.Kind)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
engine:
  scan_interval: 15s
  cache_ttl: 1m
pattern:
  - kind: disk-full
    match: No space left
http:
  listen: ":9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading yaml config: %v", err)
	}
	if cfg.Engine.ScanInterval.Duration != 15*time.Second {
		t.Errorf("scan_interval = %v, want 15s", cfg.Engine.ScanInterval.Duration)
	}
	if cfg.Engine.CacheTTL.Duration != time.Minute {
		t.Errorf("cache_ttl = %v, want 1m", cfg.Engine.CacheTTL.Duration)
	}
	if cfg.HTTP.Listen != ":9000" {
		t.Errorf("http.listen = %q", cfg.HTTP.Listen)
	}
	if len(cfg.Patterns) != 1 {
		t.Errorf("patterns = %+v", cfg.Patterns)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	path := writeConfig(t, "config.toml", "not valid [[[ toml")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero scan interval", func(c *Config) { c.Engine.ScanInterval.Duration = 0 }, "scan_interval"},
		{"negative memory", func(c *Config) { c.Engine.MaxMemoryMB = -1 }, "max_memory_mb"},
		{"zero tasks", func(c *Config) { c.Engine.MaxConcurrentTasks = 0 }, "max_concurrent_tasks"},
		{"pattern without match", func(c *Config) { c.Patterns = []PatternConfig{{Kind: "x"}} }, "pattern 0"},
		{"remediation without kind", func(c *Config) { c.Remediations = []RemediationConfig{{Type: "log"}} }, "remediation 0"},
		{"file source without paths", func(c *Config) { c.Sources = []SourceConfig{{Name: "app", Type: SourceFile}} }, "paths"},
		{"unknown source type", func(c *Config) { c.Sources = []SourceConfig{{Name: "q", Type: "kafka"}} }, "unknown type"},
		{"unknown notify_on", func(c *Config) { c.Ntfy.NotifyOn = "sometimes" }, "notify_on"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestReplaceDefaultPatterns(t *testing.T) {
	cfg := Default()
	cfg.Engine.ReplaceDefaultPatterns = true
	cfg.Patterns = []PatternConfig{{Kind: "disk-full", Match: "No space left"}}

	cls, err := cfg.Classifier()
	if err != nil {
		t.Fatal(err)
	}
	if got := cls.Classify("ECONNREFUSED"); !got.IsUnknown() {
		t.Errorf("built-in table should be dropped, got %q", got.Kind)
	}
}

func TestShouldNotify(t *testing.T) {
	cfg := Default()

	if !cfg.ShouldNotify(false) {
		t.Error("failures should notify by default")
	}
	if cfg.ShouldNotify(true) {
		t.Error("successes should not notify by default")
	}

	cfg.Ntfy.NotifyOn = NotifyAll
	if !cfg.ShouldNotify(true) {
		t.Error("notify_on=all should notify successes")
	}

	cfg.Ntfy.NotifyOn = NotifyNone
	if cfg.ShouldNotify(false) {
		t.Error("notify_on=none should never notify")
	}
}

func TestNtfyPriority(t *testing.T) {
	cfg := Default()

	if p := cfg.NtfyPriority("failed"); p != "high" {
		t.Errorf("failed priority = %q, want %q", p, "high")
	}
	if p := cfg.NtfyPriority("succeeded"); p != "low" {
		t.Errorf("succeeded priority = %q, want %q", p, "low")
	}
	if p := cfg.NtfyPriority("unknown"); p != "default" {
		t.Errorf("unknown priority = %q, want %q", p, "default")
	}
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	cfg.DB.Path = "/tmp/x.db"
	if got := cfg.DBPath(); got != "/tmp/x.db" {
		t.Errorf("DBPath = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/data")
	cfg.DB.Path = ""
	if got := cfg.DBPath(); got != "/data/autoheal/autoheal.db" {
		t.Errorf("DBPath = %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"90m", 90 * time.Minute},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{" 30s ", 30 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "xd", "7dx", "d"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) expected error", bad)
		}
	}
}

func TestRetentionInDays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[db]\nretention = \"30d\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Retention.Duration != 30*24*time.Hour {
		t.Errorf("retention = %v, want 720h", cfg.DB.Retention.Duration)
	}
}
