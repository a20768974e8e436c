// Package config loads server configuration. Values come from, in rising
// precedence: built-in defaults, an optional YAML file, a .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Consul   ConsulConfig   `yaml:"consul"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ServiceName     string        `yaml:"service_name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	// Backend is "redis" or "memory".
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type NATSConfig struct {
	// URL is empty when event publishing is disabled.
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ConsulConfig struct {
	// Addr is a comma separated agent list; empty disables registration.
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	// URL of the identity service. Empty trusts the token as the player id,
	// which is only meant for development.
	URL string `yaml:"url"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ServiceName:     "bingo",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:  "redis",
			RedisURL: "redis://localhost:6379/0",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "bingo.db",
		},
		NATS:    NATSConfig{SubjectPrefix: "bingo"},
		Session: SessionConfig{TTL: time.Hour},
		Log:     LogConfig{Level: "info", Encoding: "json"},
	}
}

// Load builds the configuration. path may be empty, in which case
// BINGO_CONFIG is consulted. envFile is loaded if it exists.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("BINGO_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys lists every variable applyEnv reads. Empty values are ignored.
var envKeys = []string{
	"BINGO_ADDR", "SERVICE_NAME", "STORE_BACKEND", "REDIS_URL",
	"DATABASE_DRIVER", "DATABASE_URL", "NATS_URL", "CONSUL_HTTP_ADDR",
	"AUTH_URL", "LOG_LEVEL", "LOG_ENCODING", "SESSION_TTL",
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"BINGO_ADDR":       &cfg.Server.Addr,
		"SERVICE_NAME":     &cfg.Server.ServiceName,
		"STORE_BACKEND":    &cfg.Store.Backend,
		"REDIS_URL":        &cfg.Store.RedisURL,
		"DATABASE_DRIVER":  &cfg.Database.Driver,
		"DATABASE_URL":     &cfg.Database.DSN,
		"NATS_URL":         &cfg.NATS.URL,
		"CONSUL_HTTP_ADDR": &cfg.Consul.Addr,
		"AUTH_URL":         &cfg.Auth.URL,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_ENCODING":     &cfg.Log.Encoding,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = ttl
	}
	return nil
}

// parseDuration accepts Go durations ("90m") and bare seconds ("3600").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want postgres or sqlite", c.Database.Driver))
	}
	switch c.Store.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want redis or memory", c.Store.Backend))
	}
	return errors.Join(errs...)
}
