// Package config loads broker configuration from the environment, with
// an optional .env file for development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all broker settings. Priority: environment variables
// over .env file over defaults.
type Config struct {
	// Listeners
	Addr     string `env:"ALDRIN_ADDR" envDefault:":24940"`
	HTTPAddr string `env:"ALDRIN_HTTP_ADDR" envDefault:":24941"`

	// Capacity
	MaxConnections    int `env:"ALDRIN_MAX_CONNECTIONS" envDefault:"1000"`
	EventQueueSize    int `env:"ALDRIN_EVENT_QUEUE" envDefault:"256"`
	ConnSendQueueSize int `env:"ALDRIN_SEND_QUEUE" envDefault:"512"`

	// Admission control
	AcceptRate         float64 `env:"ALDRIN_ACCEPT_RATE" envDefault:"128"`
	AcceptBurst        int     `env:"ALDRIN_ACCEPT_BURST" envDefault:"128"`
	CPURejectThreshold float64 `env:"ALDRIN_CPU_REJECT_THRESHOLD" envDefault:"90.0"`

	// Monitoring
	MetricsInterval time.Duration `env:"ALDRIN_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads the optional .env file and the environment, then
// validates the result.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enums.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ALDRIN_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("ALDRIN_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("ALDRIN_EVENT_QUEUE must be > 0, got %d", c.EventQueueSize)
	}
	if c.ConnSendQueueSize < 1 {
		return fmt.Errorf("ALDRIN_SEND_QUEUE must be > 0, got %d", c.ConnSendQueueSize)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("ALDRIN_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig dumps the effective configuration through the logger.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Str("http_addr", c.HTTPAddr).
		Int("max_connections", c.MaxConnections).
		Int("event_queue", c.EventQueueSize).
		Int("send_queue", c.ConnSendQueueSize).
		Float64("accept_rate", c.AcceptRate).
		Int("accept_burst", c.AcceptBurst).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("broker configuration loaded")
}
