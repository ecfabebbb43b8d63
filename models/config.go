// Package models defines data structures shared across the capture pipeline:
// configuration, requests, normalized posts and results.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can say "15s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML accepts Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Timeouts bounds every network and browser wait.
type Timeouts struct {
	Fetch   Duration `yaml:"fetch"`
	Image   Duration `yaml:"image"`
	DOMWait Duration `yaml:"dom_wait"`
	Settle  Duration `yaml:"settle"`
	Render  Duration `yaml:"render"`
}

// BrowserConfig configures the shared headless browser.
type BrowserConfig struct {
	ExecPath     string  `yaml:"exec_path"`
	Headless     *bool   `yaml:"headless"`
	WindowWidth  int     `yaml:"window_width"`
	WindowHeight int     `yaml:"window_height"`
	DeviceScale  float64 `yaml:"device_scale"`
}

// HistoryConfig controls the SQLite capture ledger.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig throttles requests per host.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// CaptureConfig holds runtime configuration for a capture run.
// Values come from an optional YAML file and are overridden by CLI flags.
type CaptureConfig struct {
	URLs         []string        `yaml:"urls"`
	OutputDir    string          `yaml:"output_dir"`
	Concurrency  int             `yaml:"concurrency"`
	RenderThread bool            `yaml:"render_thread"`
	Variant      Variant         `yaml:"variant"`
	UserAgent    string          `yaml:"user_agent"`
	Padding      int             `yaml:"padding"`
	Timeouts     Timeouts        `yaml:"timeouts"`
	Browser      BrowserConfig   `yaml:"browser"`
	History      HistoryConfig   `yaml:"history"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

const (
	DefaultOutputDir   = "captures"
	DefaultConcurrency = 3
	DefaultUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	DefaultPadding     = 20
)

// LoadConfig reads a YAML config file. A missing file yields defaults.
func LoadConfig(path string) (*CaptureConfig, error) {
	cfg := &CaptureConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *CaptureConfig) ApplyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Concurrency < 1 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Variant == "" {
		c.Variant = VariantStandard
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Padding <= 0 {
		c.Padding = DefaultPadding
	}
	setDefaultDuration(&c.Timeouts.Fetch, 20*time.Second)
	setDefaultDuration(&c.Timeouts.Image, 15*time.Second)
	setDefaultDuration(&c.Timeouts.DOMWait, 10*time.Second)
	setDefaultDuration(&c.Timeouts.Settle, 2*time.Second)
	setDefaultDuration(&c.Timeouts.Render, 15*time.Second)
	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = 1200
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = 1600
	}
	if c.Browser.DeviceScale <= 0 {
		c.Browser.DeviceScale = 2
	}
	if c.History.Enabled == nil {
		enabled := true
		c.History.Enabled = &enabled
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 4
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 4
	}
}

// HistoryEnabled reports whether the capture ledger should be written.
func (c *CaptureConfig) HistoryEnabled() bool {
	return c.History.Enabled != nil && *c.History.Enabled
}

// Validate checks values that defaults cannot repair.
func (c *CaptureConfig) Validate() error {
	if _, err := ParseVariant(string(c.Variant)); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	return nil
}

func setDefaultDuration(d *Duration, def time.Duration) {
	if d.Duration <= 0 {
		d.Duration = def
	}
}
