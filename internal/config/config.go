// Package config loads the engine configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Tracking TrackingConfig `yaml:"tracking"`
	Engine   EngineConfig   `yaml:"engine"`
	Redis    RedisConfig    `yaml:"redis"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds the tracking callback server settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// SMTPConfig holds the fixed outbound relay settings. Each dispatch worker
// opens its own authenticated TLS session against this relay.
type SMTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Addr returns the host:port dial address.
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the socket timeout as a duration.
func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TrackingConfig holds the shared MAC secret and the public base URL of the
// tracking callback endpoints.
type TrackingConfig struct {
	BaseURL string `yaml:"base_url"`
	Secret  string `yaml:"secret"`
}

// EngineConfig holds scheduling and dispatch pipeline knobs.
type EngineConfig struct {
	TickSeconds        int `yaml:"tick_seconds"`
	PreviewLeadMinutes int `yaml:"preview_lead_minutes"`
	SendsPerSecond     int `yaml:"sends_per_second"`
	ReconnectBudget    int `yaml:"reconnect_budget"`
	ErrorBudget        int `yaml:"error_budget"`
	MonitorPollSeconds int `yaml:"monitor_poll_seconds"`
	FetchTimeoutSecs   int `yaml:"fetch_timeout_seconds"`
}

// Tick returns the scheduler processing interval.
func (c EngineConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// PreviewLead returns how far ahead of the send window previews fire.
func (c EngineConfig) PreviewLead() time.Duration {
	return time.Duration(c.PreviewLeadMinutes) * time.Minute
}

// MonitorPoll returns the termination monitor poll interval.
func (c EngineConfig) MonitorPoll() time.Duration {
	return time.Duration(c.MonitorPollSeconds) * time.Second
}

// FetchTimeout returns the content origin fetch timeout.
func (c EngineConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// RedisConfig holds optional Redis settings for cross-process send pacing.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// Load reads and parses the configuration file, applying defaults. A
// missing file is not an error; deployments that configure everything
// through the environment run without one.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 465
	}
	if cfg.SMTP.TimeoutSeconds == 0 {
		cfg.SMTP.TimeoutSeconds = 30
	}
	if cfg.Engine.TickSeconds == 0 {
		cfg.Engine.TickSeconds = 60
	}
	if cfg.Engine.PreviewLeadMinutes == 0 {
		cfg.Engine.PreviewLeadMinutes = 60
	}
	if cfg.Engine.SendsPerSecond == 0 {
		cfg.Engine.SendsPerSecond = 10
	}
	if cfg.Engine.ReconnectBudget == 0 {
		cfg.Engine.ReconnectBudget = 5
	}
	if cfg.Engine.ErrorBudget == 0 {
		cfg.Engine.ErrorBudget = 25
	}
	if cfg.Engine.MonitorPollSeconds == 0 {
		cfg.Engine.MonitorPollSeconds = 1
	}
	if cfg.Engine.FetchTimeoutSecs == 0 {
		cfg.Engine.FetchTimeoutSecs = 30
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SECRET"); v != "" {
		cfg.Tracking.Secret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
