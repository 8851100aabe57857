package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "famtasks"
	configFile = "config.yaml"
	envPrefix  = "FAMTASKS"
)

type Config struct {
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Calendar CalendarConfig `yaml:"calendar" mapstructure:"calendar"`
}

type APIConfig struct {
	// TunnelURL is tried before the fallback list.
	TunnelURL    string        `yaml:"tunnel_url" mapstructure:"tunnel_url"`
	FallbackURLs []string      `yaml:"fallback_urls" mapstructure:"fallback_urls"`
	DefaultURL   string        `yaml:"default_url" mapstructure:"default_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CheckTimeout time.Duration `yaml:"check_timeout" mapstructure:"check_timeout"`
	Freshness    time.Duration `yaml:"freshness" mapstructure:"freshness"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // file, sqlite or memory
	Path    string `yaml:"path" mapstructure:"path"`
}

type CalendarConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Name        string `yaml:"name" mapstructure:"name"`
	Credentials string `yaml:"credentials" mapstructure:"credentials"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			FallbackURLs: []string{
				"http://localhost:8080",
				"http://10.0.2.2:8080",
				"http://192.168.0.30:8080",
			},
			DefaultURL:   "http://localhost:8080",
			Timeout:      5 * time.Second,
			CheckTimeout: 3 * time.Second,
			Freshness:    24 * time.Hour,
		},
		Sync: SyncConfig{
			Interval: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: "file",
		},
		Calendar: CalendarConfig{
			Name:        "Family Tasks",
			Credentials: "credentials.json",
		},
	}
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads path (or the default location when empty) over the defaults.
// A missing file is not an error. FAMTASKS_* environment variables override
// file values, e.g. FAMTASKS_API_TUNNEL_URL.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.tunnel_url", d.API.TunnelURL)
	v.SetDefault("api.fallback_urls", d.API.FallbackURLs)
	v.SetDefault("api.default_url", d.API.DefaultURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.check_timeout", d.API.CheckTimeout)
	v.SetDefault("api.freshness", d.API.Freshness)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("calendar.enabled", d.Calendar.Enabled)
	v.SetDefault("calendar.name", d.Calendar.Name)
	v.SetDefault("calendar.credentials", d.Calendar.Credentials)
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.API.Timeout <= 0 || c.API.CheckTimeout <= 0 {
		return fmt.Errorf("api timeouts must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	return nil
}

// StorePath resolves the store location, defaulting next to the config file.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if c.Store.Backend == "sqlite" {
		return filepath.Join(dir, "store.db"), nil
	}
	return filepath.Join(dir, "store.json"), nil
}

// Marshal renders cfg as YAML with durations in Go notation.
func Marshal(cfg *Config) ([]byte, error) {
	type api struct {
		TunnelURL    string   `yaml:"tunnel_url"`
		FallbackURLs []string `yaml:"fallback_urls"`
		DefaultURL   string   `yaml:"default_url"`
		Timeout      string   `yaml:"timeout"`
		CheckTimeout string   `yaml:"check_timeout"`
		Freshness    string   `yaml:"freshness"`
	}
	out := struct {
		API  api `yaml:"api"`
		Sync struct {
			Interval string `yaml:"interval"`
		} `yaml:"sync"`
		Store    StoreConfig    `yaml:"store"`
		Calendar CalendarConfig `yaml:"calendar"`
	}{
		API: api{
			TunnelURL:    cfg.API.TunnelURL,
			FallbackURLs: cfg.API.FallbackURLs,
			DefaultURL:   cfg.API.DefaultURL,
			Timeout:      cfg.API.Timeout.String(),
			CheckTimeout: cfg.API.CheckTimeout.String(),
			Freshness:    cfg.API.Freshness.String(),
		},
		Store:    cfg.Store,
		Calendar: cfg.Calendar,
	}
	out.Sync.Interval = cfg.Sync.Interval.String()
	return yaml.Marshal(out)
}

func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
