package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kestreld configuration.
type Config struct {
	Server    ServerConfig
	Kernel    KernelConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds debug API server configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" default:"9600"`
	Host         string   `envconfig:"HOST" default:"0.0.0.0"`
	AllowOrigins []string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

// KernelConfig holds boot parameters for the kernel instance.
type KernelConfig struct {
	TraceBufferBytes uint32 `envconfig:"TRACE_BUFFER_BYTES" default:"1048576"`
	UserMemBytes     int    `envconfig:"USER_MEM_BYTES" default:"16777216"`
	ConsoleStdout    bool   `envconfig:"CONSOLE_STDOUT" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds debug API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from KESTREL_-prefixed environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("kestrel", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "9600",
			Host:         "0.0.0.0",
			AllowOrigins: []string{"*"},
		},
		Kernel: KernelConfig{
			TraceBufferBytes: 1 << 20,
			UserMemBytes:     16 << 20,
			ConsoleStdout:    true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
