package authflow

import (
	"errors"
	"time"

	"github.com/MrEthical07/authflow/captcha"
)

const (
	// ThemeDark is the default theme.
	ThemeDark = "dark"
	// ThemeLight is the alternative theme.
	ThemeLight = "light"
)

// Config is copied on Build and treated as immutable afterwards.
type Config struct {
	Flow          FlowConfig
	Captcha       CaptchaConfig
	Notifications NotificationConfig
	Metrics       MetricsConfig
	Theme         ThemeConfig
}

// FlowConfig controls step transitions.
type FlowConfig struct {
	// TransitionDelay postpones the step change after a successful submit so
	// the success notification can be read. Zero applies it immediately. A
	// navigation before the delay elapses cancels the pending transition.
	TransitionDelay time.Duration
	// HistoryLimit bounds Back/Forward history.
	HistoryLimit int
}

// CaptchaConfig sets the operand range.
type CaptchaConfig struct {
	Min int
	Max int
}

// NotificationConfig controls delivery to the NotificationSink.
type NotificationConfig struct {
	// Async delivers through a buffered dispatcher goroutine instead of inline.
	Async      bool
	BufferSize int
	DropIfFull bool
	// TTL is stamped on each notification; sinks dismiss it afterwards.
	TTL time.Duration
}

// MetricsConfig mirrors the flag pair of Metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ThemeConfig sets the theme used when none is stored.
type ThemeConfig struct {
	Default string
}

// DefaultConfig returns the defaults used by New.
func DefaultConfig() Config {
	return Config{
		Flow: FlowConfig{
			TransitionDelay: 0,
			HistoryLimit:    64,
		},
		Captcha: CaptchaConfig{
			Min: captcha.DefaultMin,
			Max: captcha.DefaultMax,
		},
		Notifications: NotificationConfig{
			Async:      false,
			BufferSize: 64,
			DropIfFull: true,
			TTL:        4 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Theme: ThemeConfig{
			Default: ThemeDark,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Flow.TransitionDelay < 0 {
		return errors.New("Flow TransitionDelay must be >= 0")
	}
	if c.Flow.HistoryLimit < 1 {
		return errors.New("Flow HistoryLimit must be >= 1")
	}

	if c.Captcha.Min < 1 {
		return errors.New("Captcha Min must be >= 1")
	}
	if c.Captcha.Max < c.Captcha.Min {
		return errors.New("Captcha Max must be >= Min")
	}

	if c.Notifications.Async && c.Notifications.BufferSize < 1 {
		return errors.New("Notifications BufferSize must be >= 1 when Async is true")
	}
	if c.Notifications.TTL <= 0 {
		return errors.New("Notifications TTL must be > 0")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Enabled")
	}

	if c.Theme.Default != ThemeDark && c.Theme.Default != ThemeLight {
		return errors.New("Theme Default must be 'dark' or 'light'")
	}
	return nil
}
