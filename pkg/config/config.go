// Package config loads daemon configuration from the environment, with an
// optional YAML file for settings that do not fit environment variables.
// Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds coordinator daemon configuration.
type Config struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// DBDriver selects the store backend: "sqlite" or "postgres".
	DBDriver string `yaml:"db_driver"`
	// DBDSN is the driver-specific connection string.
	DBDSN string `yaml:"db_dsn"`

	// RedisAddr enables the read-through cache when non-empty.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	// AuthSecret is the HS256 token secret. Empty disables authentication.
	AuthSecret string `yaml:"auth_secret"`

	// GenesisPath points at the wallet genesis YAML for embedded-engine mode.
	GenesisPath string `yaml:"genesis_path"`

	// RateLimitRPS caps per-client request rate. Zero disables limiting.
	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// MetricsEndpoint is the OTLP gRPC collector address. Empty disables
	// metric export.
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

func defaults() *Config {
	return &Config{
		Port:           8080,
		LogLevel:       "INFO",
		DBDriver:       "sqlite",
		DBDSN:          "file:shieldwallet.db?_pragma=busy_timeout(5000)",
		RateLimitRPS:   0,
		RateLimitBurst: 20,
	}
}

// Load builds configuration from an optional YAML file path and the
// environment. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("GENESIS_PATH"); v != "" {
		cfg.GenesisPath = v
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitRPS = n
		}
	}
	if v := os.Getenv("METRICS_ENDPOINT"); v != "" {
		cfg.MetricsEndpoint = v
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q (want sqlite or postgres)", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db dsn is required")
	}
	return nil
}
