package tap

import (
	"fmt"
	"math"
	"time"
)

// Defaults for Config.
const (
	DefaultTimeout = 10 * time.Second
	DefaultWidth   = 1024
	DefaultHeight  = 768
)

// Setting keys accepted by Session.Set.
const (
	SettingTimeout = "timeout"
	SettingWidth   = "width"
	SettingHeight  = "height"
	SettingBaseURL = "base_url"
)

// Config holds the per-session options.
type Config struct {
	// BaseURL is prefixed to every path passed to Session.Open.
	BaseURL string
	// Width and Height size the browser viewport when the page is first
	// opened.
	Width  int
	Height int
	// Timeout bounds every job that waits for an event, e.g. Open.
	Timeout time.Duration
}

// DefaultConfig returns the defaults for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Timeout: DefaultTimeout,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// setting converts a Set call into a function applying it to a Config.
// Numbers are accepted in any of the forms scripts produce; timeouts given as
// plain numbers are milliseconds.
func setting(key string, value any) (func(*Config), error) {
	switch key {
	case SettingTimeout:
		if d, ok := value.(time.Duration); ok {
			if d <= 0 {
				return nil, &SettingError{Key: key, Value: value, Err: ErrInvalidSetting}
			}
			return func(c *Config) { c.Timeout = d }, nil
		}
		ms, err := positiveInt(key, value)
		if err != nil {
			return nil, err
		}
		return func(c *Config) { c.Timeout = time.Duration(ms) * time.Millisecond }, nil

	case SettingWidth:
		n, err := positiveInt(key, value)
		if err != nil {
			return nil, err
		}
		return func(c *Config) { c.Width = n }, nil

	case SettingHeight:
		n, err := positiveInt(key, value)
		if err != nil {
			return nil, err
		}
		return func(c *Config) { c.Height = n }, nil

	case SettingBaseURL:
		s, ok := value.(string)
		if !ok {
			return nil, &SettingError{Key: key, Value: value, Err: ErrInvalidSetting}
		}
		return func(c *Config) { c.BaseURL = s }, nil
	}
	return nil, &SettingError{Key: key, Value: value, Err: ErrUnknownSetting}
}

func positiveInt(key string, value any) (int, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 {
			return 0, &SettingError{Key: key, Value: value, Err: fmt.Errorf("%w: %v is not a whole number", ErrInvalidSetting, v)}
		}
		n = int64(v)
	default:
		return 0, &SettingError{Key: key, Value: value, Err: ErrInvalidSetting}
	}
	if n <= 0 {
		return 0, &SettingError{Key: key, Value: value, Err: fmt.Errorf("%w: must be positive", ErrInvalidSetting)}
	}
	return int(n), nil
}
