// Package config loads taskdemo settings from an optional YAML file and
// TASKDEMO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/identity"
)

// EnvPrefix prefixes every environment override, e.g. TASKDEMO_SERVER_ADDR
const EnvPrefix = "TASKDEMO"

// Config is the complete taskdemo configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Session     SessionConfig     `yaml:"session" mapstructure:"session"`
	Categorizer CategorizerConfig `yaml:"categorizer" mapstructure:"categorizer"`
	Views       ViewsConfig       `yaml:"views" mapstructure:"views"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	Mode string `yaml:"mode" mapstructure:"mode"` // debug, release or test
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	MaxOpenConns  int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// SessionConfig configures the session cookie and forwarded header
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name" mapstructure:"cookie_name"`
	HeaderName string        `yaml:"header_name" mapstructure:"header_name"`
	MaxAge     time.Duration `yaml:"max_age" mapstructure:"max_age"`
	Secure     bool          `yaml:"secure" mapstructure:"secure"`
}

// CategorizerConfig points at an optional upstream categorizer
type CategorizerConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"` // empty uses built-in rules
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ViewsConfig configures the per-session view cache
type ViewsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dbPath, err := db.DefaultPath()
	if err != nil {
		dbPath = "taskdemo.db"
	}

	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
			Mode: "release",
		},
		Database: DatabaseConfig{
			Path:          dbPath,
			BusyTimeoutMS: 5000,
			MaxOpenConns:  4,
		},
		Session: SessionConfig{
			CookieName: identity.DefaultCookieName,
			HeaderName: identity.DefaultHeaderName,
			MaxAge:     identity.DefaultMaxAge,
		},
		Categorizer: CategorizerConfig{
			Timeout: 5 * time.Second,
		},
		Views: ViewsConfig{
			CacheTTL: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from path, if given, and the environment. A
// missing file at path is an error; an empty path uses defaults plus env.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range flatten("", cfg.values()) {
		v.SetDefault(key, value)
	}
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.BusyTimeoutMS < 0 {
		errs = append(errs, errors.New("database.busy_timeout_ms must not be negative"))
	}
	if c.Session.CookieName == "" || c.Session.HeaderName == "" {
		errs = append(errs, errors.New("session.cookie_name and session.header_name are required"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, errors.New("session.max_age must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DBOptions converts the database section into store options
func (c *Config) DBOptions() db.Options {
	return db.Options{
		Path:         c.Database.Path,
		BusyTimeout:  time.Duration(c.Database.BusyTimeoutMS) * time.Millisecond,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// CookieConfig converts the session section into edge cookie settings
func (c *Config) CookieConfig() identity.CookieConfig {
	return identity.CookieConfig{
		Name:       c.Session.CookieName,
		HeaderName: c.Session.HeaderName,
		MaxAge:     c.Session.MaxAge,
		Secure:     c.Session.Secure,
	}
}

// YAML renders the configuration with durations in their readable form
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.values())
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := DefaultConfig().YAML()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	content := "# taskdemo configuration\n# Every key can be overridden with TASKDEMO_<SECTION>_<KEY>.\n" + string(data)
	return os.WriteFile(path, []byte(content), 0644)
}

// values maps the configuration into nested maps keyed like the YAML file
func (c *Config) values() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"addr": c.Server.Addr,
			"mode": c.Server.Mode,
		},
		"database": map[string]any{
			"path":            c.Database.Path,
			"busy_timeout_ms": c.Database.BusyTimeoutMS,
			"max_open_conns":  c.Database.MaxOpenConns,
		},
		"session": map[string]any{
			"cookie_name": c.Session.CookieName,
			"header_name": c.Session.HeaderName,
			"max_age":     c.Session.MaxAge.String(),
			"secure":      c.Session.Secure,
		},
		"categorizer": map[string]any{
			"url":     c.Categorizer.URL,
			"timeout": c.Categorizer.Timeout.String(),
		},
		"views": map[string]any{
			"cache_ttl": c.Views.CacheTTL.String(),
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"metrics": map[string]any{
			"enabled": c.Metrics.Enabled,
		},
	}
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}
