// Package config loads and validates the hub.yml configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config is the top-level hub.yml configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Instance string         `yaml:"instance"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Liveness LivenessConfig `yaml:"liveness,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// RedisConfig locates the backing store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"` // default :8080
}

// LivenessConfig tunes the connection sweep and the task reaper.
// Durations accept Go syntax ("30s", "2m").
type LivenessConfig struct {
	PingInterval  time.Duration `yaml:"ping_interval,omitempty"`  // default 30s
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"` // default 60s
	ConnectGrace  time.Duration `yaml:"connect_grace,omitempty"`  // default 2m
	ReapInterval  time.Duration `yaml:"reap_interval,omitempty"`  // default 60s
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // default info
}

// Load reads, defaults and validates a hub.yml file. Environment variables
// HUB_INSTANCE_NAME and REDIS_URL override the file when set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration bytes. Unknown fields
// are rejected so typos fail loudly at startup.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HUB_INSTANCE_NAME"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Liveness.PingInterval == 0 {
		c.Liveness.PingInterval = 30 * time.Second
	}
	if c.Liveness.SweepInterval == 0 {
		c.Liveness.SweepInterval = 60 * time.Second
	}
	if c.Liveness.ConnectGrace == 0 {
		c.Liveness.ConnectGrace = 2 * time.Minute
	}
	if c.Liveness.ReapInterval == 0 {
		c.Liveness.ReapInterval = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %q (expected: 1.0)", c.Version)
	}
	if c.Instance == "" {
		return fmt.Errorf("instance name must be set (hub.yml or HUB_INSTANCE_NAME)")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url must be set (hub.yml or REDIS_URL)")
	}
	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"ping_interval":  c.Liveness.PingInterval,
		"sweep_interval": c.Liveness.SweepInterval,
		"connect_grace":  c.Liveness.ConnectGrace,
		"reap_interval":  c.Liveness.ReapInterval,
	} {
		if d < 0 {
			return fmt.Errorf("liveness.%s cannot be negative", name)
		}
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.Log.Level)
	}
	return nil
}

// RedisOptions parses the configured Redis URL into client options.
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return opts, nil
}
