package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"gopkg.in/yaml.v3"
)

const (
	envConfig     = "AMFA_CONFIG"
	envBackendURL = "AMFA_BACKEND_URL"
	envRedisAddr  = "AMFA_REDIS_ADDR"

	defaultConfigPath = "amfa.yaml"
)

type backendConfig struct {
	URL        string `yaml:"url"`
	PathPrefix string `yaml:"path_prefix"`
	UserAgent  string `yaml:"user_agent"`
}

type redisConfig struct {
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
	Profile string `yaml:"profile"`
}

type storeConfig struct {
	// Driver is file, memory or redis.
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  redisConfig `yaml:"redis"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type flowConfig struct {
	TransitionDelay time.Duration `yaml:"transition_delay"`
}

type notificationsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type config struct {
	Backend       backendConfig       `yaml:"backend"`
	Store         storeConfig         `yaml:"store"`
	Log           logConfig           `yaml:"log"`
	Flow          flowConfig          `yaml:"flow"`
	Notifications notificationsConfig `yaml:"notifications"`
	Theme         string              `yaml:"theme"`
	Metrics       bool                `yaml:"metrics"`
}

func defaultConfig() config {
	return config{
		Backend: backendConfig{URL: "http://localhost:5000"},
		Store:   storeConfig{Driver: "file", Path: ".amfa-session.json"},
		Log:     logConfig{Level: "info", Format: "console", File: "amfa.log"},
		Notifications: notificationsConfig{
			TTL: 4 * time.Second,
		},
		Theme:   authflow.ThemeDark,
		Metrics: true,
	}
}

// loadConfig reads path over the defaults and then applies environment
// overrides. A missing file is only an error when it was asked for explicitly.
func loadConfig(path string, getenv func(string) string) (config, error) {
	cfg := defaultConfig()

	explicit := true
	if path == "" {
		path = getenv(envConfig)
	}
	if path == "" {
		path, explicit = defaultConfigPath, false
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return config{}, fmt.Errorf("open config: %w", err)
	}

	if v := strings.TrimSpace(getenv(envBackendURL)); v != "" {
		cfg.Backend.URL = v
	}
	if v := strings.TrimSpace(getenv(envRedisAddr)); v != "" {
		cfg.Store.Redis.Addr = v
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return errors.New("backend.url must be set")
	}
	switch c.Store.Driver {
	case "memory", "redis":
	case "file":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path must be set for the file driver")
		}
	default:
		return fmt.Errorf("store.driver %q must be file, memory or redis", c.Store.Driver)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", c.Log.Format)
	}
	if c.Theme != authflow.ThemeDark && c.Theme != authflow.ThemeLight {
		return fmt.Errorf("theme %q must be dark or light", c.Theme)
	}
	if c.Flow.TransitionDelay < 0 {
		return errors.New("flow.transition_delay must be >= 0")
	}
	if c.Notifications.TTL <= 0 {
		return errors.New("notifications.ttl must be > 0")
	}
	return nil
}

// controllerConfig maps the CLI file onto the library configuration.
func (c config) controllerConfig() authflow.Config {
	cfg := authflow.DefaultConfig()
	cfg.Flow.TransitionDelay = c.Flow.TransitionDelay
	cfg.Notifications.TTL = c.Notifications.TTL
	cfg.Theme.Default = c.Theme
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Metrics
	return cfg
}
