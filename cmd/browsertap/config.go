package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/browsertap/pkg/tap"
	"github.com/thesyncim/browsertap/pkg/tap/rodpage"
)

// Config is the CLI configuration: built-in defaults, then the YAML file,
// then flags.
type Config struct {
	BaseURL  string        `yaml:"base_url"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Timeout  int           `yaml:"timeout"` // milliseconds
	Fixtures string        `yaml:"fixtures"`
	Watch    bool          `yaml:"watch"`
	LogLevel string        `yaml:"log_level"`
	Browser  BrowserConfig `yaml:"browser"`
}

// BrowserConfig is the "browser" block of the config file.
type BrowserConfig struct {
	Headless   bool   `yaml:"headless"`
	Bin        string `yaml:"bin"`
	NoSandbox  bool   `yaml:"no_sandbox"`
	SlowMotion int    `yaml:"slow_motion"` // milliseconds
}

// DefaultConfig returns the configuration used when no file or flag says
// otherwise.
func DefaultConfig() Config {
	b := rodpage.DefaultBrowserConfig()
	return Config{
		Width:    tap.DefaultWidth,
		Height:   tap.DefaultHeight,
		Timeout:  int(tap.DefaultTimeout / time.Millisecond),
		LogLevel: "warning",
		Browser: BrowserConfig{
			Headless:  b.Headless,
			Bin:       b.Bin,
			NoSandbox: b.NoSandbox,
		},
	}
}

// LoadConfig reads path over the defaults. Keys missing from the file keep
// their default; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := decodeConfig(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func decodeConfig(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks ranges and the log level.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %dms", c.Timeout)
	}
	if c.Browser.SlowMotion < 0 {
		return fmt.Errorf("slow_motion must not be negative, got %dms", c.Browser.SlowMotion)
	}
	_, err := parseLevel(c.LogLevel)
	return err
}

// Session returns the per-session configuration for a script's
// `new Test(base)`. A configured BaseURL takes precedence, so one script can
// run against several deployments.
func (c Config) Session(base string) tap.Config {
	if c.BaseURL != "" {
		base = c.BaseURL
	}
	return tap.Config{
		BaseURL: base,
		Width:   c.Width,
		Height:  c.Height,
		Timeout: time.Duration(c.Timeout) * time.Millisecond,
	}
}

// BrowserOptions returns the launch options for rodpage.
func (c Config) BrowserOptions() rodpage.BrowserConfig {
	b := rodpage.DefaultBrowserConfig()
	b.Headless = c.Browser.Headless
	b.Bin = c.Browser.Bin
	b.NoSandbox = c.Browser.NoSandbox
	b.SlowMotion = time.Duration(c.Browser.SlowMotion) * time.Millisecond
	return b
}

func parseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(s) {
	case "", "warning", "warn":
		return logiface.LevelWarning, nil
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}
