// Package config handles TOML (or YAML) configuration loading with sensible
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/setevik/autoheal/internal/classifier"
	"github.com/setevik/autoheal/internal/engine"
	"github.com/setevik/autoheal/internal/fault"
	"github.com/setevik/autoheal/internal/remedy"
)

// Config is the top-level configuration for autoheal.
type Config struct {
	Instance     InstanceConfig      `toml:"instance" yaml:"instance"`
	Engine       EngineConfig        `toml:"engine" yaml:"engine"`
	Patterns     []PatternConfig     `toml:"pattern" yaml:"pattern"`
	Remediations []RemediationConfig `toml:"remediation" yaml:"remediation"`
	Sources      []SourceConfig      `toml:"source" yaml:"source"`
	DB           DBConfig            `toml:"db" yaml:"db"`
	Ntfy         NtfyConfig          `toml:"ntfy" yaml:"ntfy"`
	Cooldown     CooldownConfig      `toml:"cooldown" yaml:"cooldown"`
	HTTP         HTTPConfig          `toml:"http" yaml:"http"`
	Log          LogConfig           `toml:"log" yaml:"log"`
}

// InstanceConfig identifies this machine.
type InstanceConfig struct {
	ID string `toml:"id" yaml:"id"`
}

// EngineConfig tunes the scan loop and its governors.
type EngineConfig struct {
	ScanInterval          Duration `toml:"scan_interval" yaml:"scan_interval"`
	ResourceCheckInterval Duration `toml:"resource_check_interval" yaml:"resource_check_interval"`
	MaxMemoryMB           float64  `toml:"max_memory_mb" yaml:"max_memory_mb"`
	MaxCPUPercent         float64  `toml:"max_cpu_percent" yaml:"max_cpu_percent"`
	MaxConcurrentTasks    int      `toml:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	CacheTTL              Duration `toml:"cache_ttl" yaml:"cache_ttl"`
	RemediationTimeout    Duration `toml:"remediation_timeout" yaml:"remediation_timeout"`
	// ResourceGovernor turns self-monitoring on or off.
	ResourceGovernor bool `toml:"resource_governor" yaml:"resource_governor"`
	// ReplaceDefaultPatterns drops the built-in table instead of checking
	// configured patterns first.
	ReplaceDefaultPatterns bool `toml:"replace_default_patterns" yaml:"replace_default_patterns"`
}

// PatternConfig maps a regular expression to a fault kind.
type PatternConfig struct {
	Kind  string `toml:"kind" yaml:"kind"`
	Match string `toml:"match" yaml:"match"`
}

// RemediationConfig binds an action to a fault kind.
type RemediationConfig struct {
	Kind    string   `toml:"kind" yaml:"kind"`
	Type    string   `toml:"type" yaml:"type"`
	Command []string `toml:"command" yaml:"command"`
	Unit    string   `toml:"unit" yaml:"unit"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// Source types.
const (
	SourceFile    = "file"
	SourceJournal = "journal"
)

// SourceConfig describes where signals come from.
type SourceConfig struct {
	Name string `toml:"name" yaml:"name"`
	Type string `toml:"type" yaml:"type"`

	// file
	Paths     []string `toml:"paths" yaml:"paths"`
	MaxLines  int      `toml:"max_lines" yaml:"max_lines"`
	FromStart bool     `toml:"from_start" yaml:"from_start"`

	// journal
	Units      []string `toml:"units" yaml:"units"`
	Priority   string   `toml:"priority" yaml:"priority"`
	CursorFile string   `toml:"cursor_file" yaml:"cursor_file"`
	BufferSize int      `toml:"buffer_size" yaml:"buffer_size"`
}

// DBConfig controls remediation history storage.
type DBConfig struct {
	Path      string   `toml:"path" yaml:"path"`
	Retention Duration `toml:"retention" yaml:"retention"`
}

// Notify filters.
const (
	NotifyFailed = "failed"
	NotifyAll    = "all"
	NotifyNone   = "none"
)

// NtfyConfig controls the ntfy notification target.
type NtfyConfig struct {
	URL         string            `toml:"url" yaml:"url"`
	NotifyOn    string            `toml:"notify_on" yaml:"notify_on"`
	PriorityMap map[string]string `toml:"priority_map" yaml:"priority_map"`
}

// CooldownConfig controls repeated-failure alert suppression.
type CooldownConfig struct {
	Window             Duration `toml:"window" yaml:"window"`
	AggregateThreshold int      `toml:"aggregate_threshold" yaml:"aggregate_threshold"`
}

// HTTPConfig controls the status endpoint. An empty Listen disables it.
type HTTPConfig struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	JSON  bool   `toml:"json" yaml:"json"`
}

// Duration wraps time.Duration for string parsing (e.g. "5m", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// ParseDuration accepts time.ParseDuration syntax with an optional leading
// whole number of days ("d") or weeks ("w"), e.g. "90d", "2w" or "1d12h".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) || (s[i] != 'd' && s[i] != 'w') {
		return time.ParseDuration(s)
	}

	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	unit := 24 * time.Hour
	if s[i] == 'w' {
		unit *= 7
	}
	d := time.Duration(n) * unit

	if rest := s[i+1:]; rest != "" {
		r, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d += r
	}
	return d, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return &Config{
		Instance: InstanceConfig{
			ID: hostname,
		},
		Engine: EngineConfig{
			ScanInterval:          Duration{30 * time.Second},
			ResourceCheckInterval: Duration{10 * time.Second},
			MaxMemoryMB:           100,
			MaxCPUPercent:         50,
			MaxConcurrentTasks:    3,
			CacheTTL:              Duration{30 * time.Second},
			RemediationTimeout:    Duration{remedy.DefaultTimeout},
			ResourceGovernor:      true,
		},
		DB: DBConfig{
			Retention: Duration{90 * 24 * time.Hour},
		},
		Ntfy: NtfyConfig{
			NotifyOn: NotifyFailed,
			PriorityMap: map[string]string{
				string(fault.StatusFailed):    "high",
				string(fault.StatusSucceeded): "low",
			},
		},
		Cooldown: CooldownConfig{
			Window:             Duration{5 * time.Minute},
			AggregateThreshold: 3,
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "autoheal", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields. If the file does not exist, returns defaults. Paths
// ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Engine
	if e.ScanInterval.Duration <= 0 {
		errs = append(errs, errors.New("engine.scan_interval must be positive"))
	}
	if e.ResourceCheckInterval.Duration <= 0 {
		errs = append(errs, errors.New("engine.resource_check_interval must be positive"))
	}
	if e.MaxMemoryMB <= 0 {
		errs = append(errs, errors.New("engine.max_memory_mb must be positive"))
	}
	if e.MaxCPUPercent <= 0 {
		errs = append(errs, errors.New("engine.max_cpu_percent must be positive"))
	}
	if e.MaxConcurrentTasks <= 0 {
		errs = append(errs, errors.New("engine.max_concurrent_tasks must be positive"))
	}
	if e.CacheTTL.Duration <= 0 {
		errs = append(errs, errors.New("engine.cache_ttl must be positive"))
	}
	if e.RemediationTimeout.Duration <= 0 {
		errs = append(errs, errors.New("engine.remediation_timeout must be positive"))
	}

	for i, p := range c.Patterns {
		if p.Kind == "" || p.Match == "" {
			errs = append(errs, fmt.Errorf("pattern %d: kind and match are required", i))
		}
	}
	for i, r := range c.Remediations {
		if r.Kind == "" {
			errs = append(errs, fmt.Errorf("remediation %d: kind is required", i))
		}
	}
	for i, s := range c.Sources {
		switch s.Type {
		case SourceFile:
			if len(s.Paths) == 0 {
				errs = append(errs, fmt.Errorf("source %d (%s): paths are required", i, s.Name))
			}
		case SourceJournal:
		default:
			errs = append(errs, fmt.Errorf("source %d (%s): unknown type %q", i, s.Name, s.Type))
		}
	}

	switch c.Ntfy.NotifyOn {
	case NotifyFailed, NotifyAll, NotifyNone, "":
	default:
		errs = append(errs, fmt.Errorf("ntfy.notify_on: unknown value %q", c.Ntfy.NotifyOn))
	}
	return errors.Join(errs...)
}

// DBPath returns the history database path, defaulting to the user's data
// directory.
func (c *Config) DBPath() string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(dataDir, "autoheal", "autoheal.db")
}

// EngineSettings converts the [engine] section.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		ScanInterval:          c.Engine.ScanInterval.Duration,
		ResourceCheckInterval: c.Engine.ResourceCheckInterval.Duration,
		MaxMemoryMB:           c.Engine.MaxMemoryMB,
		MaxCPUPercent:         c.Engine.MaxCPUPercent,
		MaxConcurrentTasks:    c.Engine.MaxConcurrentTasks,
		CacheTTL:              c.Engine.CacheTTL.Duration,
	}
}

// Classifier builds the pattern table: configured patterns ahead of the
// built-in ones, or alone when ReplaceDefaultPatterns is set.
func (c *Config) Classifier() (*classifier.Classifier, error) {
	patterns := make([]classifier.Pattern, 0, len(c.Patterns))
	for _, p := range c.Patterns {
		patterns = append(patterns, classifier.Pattern{Kind: fault.Kind(p.Kind), Expr: p.Match})
	}
	if c.Engine.ReplaceDefaultPatterns {
		return classifier.New(patterns)
	}
	return classifier.WithPrepended(patterns)
}

// Registry builds the remediation registry from [[remediation]] entries.
func (c *Config) Registry() (*remedy.Registry, error) {
	specs := make([]remedy.Spec, 0, len(c.Remediations))
	for _, r := range c.Remediations {
		specs = append(specs, remedy.Spec{
			Kind:    r.Kind,
			Type:    r.Type,
			Command: r.Command,
			Unit:    r.Unit,
			Timeout: r.Timeout.Duration,
		})
	}
	return remedy.FromSpecs(specs, c.Engine.RemediationTimeout.Duration)
}

// ShouldNotify reports whether a finished task with the given outcome is
// sent to ntfy.
func (c *Config) ShouldNotify(success bool) bool {
	switch c.Ntfy.NotifyOn {
	case NotifyAll:
		return true
	case NotifyNone:
		return false
	default:
		return !success
	}
}

// NtfyPriority maps a task status to an ntfy priority string.
func (c *Config) NtfyPriority(status string) string {
	if p, ok := c.Ntfy.PriorityMap[status]; ok {
		return p
	}
	return "default"
}
