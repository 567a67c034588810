// Package config loads server configuration from YAML with environment
// overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mailer   MailerConfig   `yaml:"mailer"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional batch-progress backend settings.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MailerConfig holds dispatch behavior settings.
type MailerConfig struct {
	LocalName             string `yaml:"local_name"`
	PacingMs              int    `yaml:"pacing_ms"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	IOTimeoutSeconds      int    `yaml:"io_timeout_seconds"`
}

// PacingDelay returns the inter-recipient pacing as a duration.
func (m MailerConfig) PacingDelay() time.Duration {
	return time.Duration(m.PacingMs) * time.Millisecond
}

// Load reads and parses the configuration file, filling defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads the YAML file (when present), reads .env, and applies
// environment overrides on top.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if loaded, err := Load(path); err == nil {
			cfg = loaded
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	cfg.applyDefaults()

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Mailer.LocalName == "" {
		c.Mailer.LocalName = "localhost"
	}
	if c.Mailer.PacingMs == 0 {
		c.Mailer.PacingMs = 100
	}
	if c.Mailer.ConnectTimeoutSeconds == 0 {
		c.Mailer.ConnectTimeoutSeconds = 15
	}
	if c.Mailer.IOTimeoutSeconds == 0 {
		c.Mailer.IOTimeoutSeconds = 10
	}
}
