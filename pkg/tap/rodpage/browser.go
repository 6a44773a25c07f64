// Package rodpage drives a real Chrome page with Rod for tap sessions.
// It launches the browser, hands out pages implementing tap.PageDriver and
// tap.Bridge, and cleans up behind them.
package rodpage

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless   bool          // Run in headless mode (default: true)
	Timeout    time.Duration // Limit for a single browser call (default: 30s)
	Bin        string        // Chrome binary; empty lets Rod find or download one
	NoSandbox  bool          // Pass --no-sandbox (default: true, for containers)
	SlowMotion time.Duration // Delay between input actions, for watching runs
}

// DefaultBrowserConfig returns defaults suitable for CI and containers.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:  true,
		Timeout:   30 * time.Second,
		NoSandbox: true,
	}
}

// Browser is a launched Chrome instance.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	timeout  time.Duration
}

// Launch starts Chrome and connects to it.
func Launch(cfg BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu")
	if cfg.NoSandbox {
		l = l.Set("no-sandbox")
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if cfg.SlowMotion > 0 {
		browser = browser.SlowMotion(cfg.SlowMotion)
	}
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowserConfig().Timeout
	}
	return &Browser{
		launcher: l,
		browser:  browser,
		timeout:  timeout,
	}, nil
}

// NewPage opens a blank tab.
func (b *Browser) NewPage() (*Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return newPage(page, b.timeout), nil
}

// Close shuts Chrome down.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}
