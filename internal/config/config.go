package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root service configuration, loaded from a YAML file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Logging  LoggingConfig  `yaml:"logging"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read-timeout-sec"`
	WriteTimeoutSec int    `yaml:"write-timeout-sec"`
}

// ReadTimeout returns the configured read timeout.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the configured write timeout.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

// DatabaseConfig holds the connection DSN. PostgreSQL and SQLite DSNs are
// both accepted; the dialect is detected from the string.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiry-hours"`
}

// Expiry returns the configured token lifetime.
func (j JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

// LoggingConfig holds log level and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// RedisConfig holds the optional settings-cache backend. An empty address
// disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig holds booking-event intake and dispatch settings.
type EventsConfig struct {
	IntakeToken         string `yaml:"intake-token"`
	DispatchIntervalSec int    `yaml:"dispatch-interval-sec"`
	MaxAttempts         int    `yaml:"max-attempts"`
}

// DispatchInterval returns the configured dispatcher poll interval.
func (e EventsConfig) DispatchInterval() time.Duration {
	return time.Duration(e.DispatchIntervalSec) * time.Second
}

// ResolveConfigPath picks the config path from the flag value or environment.
func ResolveConfigPath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("PLACEBOOK_CONFIG")); env != "" {
		return env
	}
	return "config.yaml"
}

// Load reads and parses the YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 28
	}
	if c.Events.DispatchIntervalSec == 0 {
		c.Events.DispatchIntervalSec = 5
	}
	if c.Events.MaxAttempts == 0 {
		c.Events.MaxAttempts = 5
	}
}
