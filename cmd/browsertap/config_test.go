package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/browsertap/pkg/tap"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	path := writeFile(t, "browsertap.yaml", `
base_url: https://staging.example.com
timeout: 30000
browser:
  headless: false
  slow_motion: 250
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
	assert.Equal(t, 30000, cfg.Timeout)
	assert.Equal(t, tap.DefaultWidth, cfg.Width, "missing keys keep their default")
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.NoSandbox, "missing nested keys keep their default")

	b := cfg.BrowserOptions()
	assert.Equal(t, 250*time.Millisecond, b.SlowMotion)
	assert.False(t, b.Headless)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "typo.yaml", "widht: 800\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widht")
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"negative width": "width: -1\n",
		"zero timeout":   "timeout: 0\n",
		"bad log level":  "log_level: loud\n",
		"bad slow":       "browser:\n  slow_motion: -5\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "bad.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_SessionBaseURL(t *testing.T) {
	cfg := DefaultConfig()

	s := cfg.Session("https://github.com")
	assert.Equal(t, "https://github.com", s.BaseURL, "script base is used by default")
	assert.Equal(t, tap.DefaultTimeout, s.Timeout)

	cfg.BaseURL = "http://127.0.0.1:8080"
	s = cfg.Session("https://github.com")
	assert.Equal(t, "http://127.0.0.1:8080", s.BaseURL, "configured base wins")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logiface.Level{
		"":        logiface.LevelWarning,
		"debug":   logiface.LevelDebug,
		"INFO":    logiface.LevelInformational,
		"err":     logiface.LevelError,
		"error":   logiface.LevelError,
		"off":     logiface.LevelDisabled,
		"warning": logiface.LevelWarning,
	}
	for in, want := range tests {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestRealMain_Usage(t *testing.T) {
	assert.Equal(t, 2, realMain(nil), "a script is required")
	assert.Equal(t, 2, realMain([]string{"a.js", "b.js"}))
	assert.Equal(t, 2, realMain([]string{"-width", "0", "a.js"}), "flags are validated")
	assert.Equal(t, 2, realMain([]string{"-no-such-flag", "a.js"}))

	bad := writeFile(t, "bad.yaml", strings.Repeat(" ", 2)+"- not a map\n")
	assert.Equal(t, 2, realMain([]string{"-config", bad, "a.js"}))
}
