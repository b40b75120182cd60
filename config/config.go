package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "2s" or "350ms".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalJSON accepts duration strings when configs are loaded from CUE.
func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// BridgeConfig describes how to reach the bridge admin API.
type BridgeConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// PollConfig tunes the snapshot polling schedule.
type PollConfig struct {
	// ActiveInterval applies while the dashboard has a recent viewer.
	ActiveInterval Duration `yaml:"active_interval,omitempty" json:"active_interval,omitempty"`
	// IdleInterval applies when nobody is watching.
	IdleInterval Duration `yaml:"idle_interval,omitempty" json:"idle_interval,omitempty"`
	// IdleAfter is how long without viewer activity before the schedule
	// drops to the idle interval.
	IdleAfter Duration `yaml:"idle_after,omitempty" json:"idle_after,omitempty"`
}

// EditConfig tunes the mutation coalescer.
type EditConfig struct {
	// CoalesceWindow is the quiescence window after the last edit to a key
	// before the coalesced write fires.
	CoalesceWindow Duration `yaml:"coalesce_window,omitempty" json:"coalesce_window,omitempty"`
}

// DashboardConfig configures the local operator dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// FilterPresetConfig names a saved entity filter for the dashboard.
// Expression syntax is the expr language evaluated per entity; see views.
type FilterPresetConfig struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	Expression string `yaml:"expression" json:"expression"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	URL     string            `yaml:"url" json:"url"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level" json:"level"`
	Format string     `yaml:"format,omitempty" json:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki" json:"loki"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`
	Listen   string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// Config is the root configuration structure for the console.
type Config struct {
	Name      string               `yaml:"name,omitempty" json:"name,omitempty"`
	Bridge    BridgeConfig         `yaml:"bridge" json:"bridge"`
	Poll      PollConfig           `yaml:"poll" json:"poll"`
	Edits     EditConfig           `yaml:"edits" json:"edits"`
	Dashboard DashboardConfig      `yaml:"dashboard" json:"dashboard"`
	Filters   []FilterPresetConfig `yaml:"filters,omitempty" json:"filters,omitempty"`
	Logging   LoggingConfig        `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig      `yaml:"telemetry" json:"telemetry"`
}

const (
	defaultBridgeTimeout  = 10 * time.Second
	defaultActiveInterval = 2 * time.Second
	defaultIdleInterval   = 10 * time.Second
	defaultIdleAfter      = 30 * time.Second
	defaultCoalesceWindow = 350 * time.Millisecond
	defaultDashboardAddr  = "127.0.0.1:18090"
)

// Load reads the configuration from a YAML or CUE file, applies defaults
// and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		if err := decodeCUE(path, data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("compile cue config %s: %w", path, err)
	}
	if err := value.Validate(); err != nil {
		return fmt.Errorf("validate cue config %s: %w", path, err)
	}
	if err := value.Decode(cfg); err != nil {
		return fmt.Errorf("decode cue config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Bridge.Timeout.Duration <= 0 {
		c.Bridge.Timeout.Duration = defaultBridgeTimeout
	}
	if c.Poll.ActiveInterval.Duration <= 0 {
		c.Poll.ActiveInterval.Duration = defaultActiveInterval
	}
	if c.Poll.IdleInterval.Duration <= 0 {
		c.Poll.IdleInterval.Duration = defaultIdleInterval
	}
	if c.Poll.IdleAfter.Duration <= 0 {
		c.Poll.IdleAfter.Duration = defaultIdleAfter
	}
	if c.Edits.CoalesceWindow.Duration <= 0 {
		c.Edits.CoalesceWindow.Duration = defaultCoalesceWindow
	}
	if c.Dashboard.Listen == "" {
		c.Dashboard.Listen = defaultDashboardAddr
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bridge.URL) == "" {
		return fmt.Errorf("bridge url must not be empty")
	}
	if !strings.HasPrefix(c.Bridge.URL, "http://") && !strings.HasPrefix(c.Bridge.URL, "https://") {
		return fmt.Errorf("bridge url %q must use http or https", c.Bridge.URL)
	}
	if c.Poll.ActiveInterval.Duration > c.Poll.IdleInterval.Duration {
		return fmt.Errorf("active poll interval %s must not exceed idle interval %s",
			c.Poll.ActiveInterval.Duration, c.Poll.IdleInterval.Duration)
	}
	seen := make(map[string]struct{}, len(c.Filters))
	for _, preset := range c.Filters {
		if preset.ID == "" {
			return fmt.Errorf("filter preset id must not be empty")
		}
		if _, ok := seen[preset.ID]; ok {
			return fmt.Errorf("duplicate filter preset id %q", preset.ID)
		}
		seen[preset.ID] = struct{}{}
		if strings.TrimSpace(preset.Expression) == "" {
			return fmt.Errorf("filter preset %s missing expression", preset.ID)
		}
	}
	if c.Logging.Loki.Enabled && c.Logging.Loki.URL == "" {
		return fmt.Errorf("loki logging enabled without url")
	}
	return nil
}
