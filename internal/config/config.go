// Package config loads the broker's ServerConfig from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// ServerConfig is the immutable configuration consumed by the acceptor and
// every ConnectionService it spawns: it shapes the INFO frame, bounds
// max_payload, and sets the flush interval, write buffer size, publish rate
// limit, metrics address, stats period and logging options.
type ServerConfig struct {
	ServerID   string `env:"NATSD_SERVER_ID" envDefault:"natsd"`
	ServerName string `env:"NATSD_SERVER_NAME" envDefault:"natsd"`
	Version    string `env:"NATSD_VERSION" envDefault:"0.1.0"`

	Host string `env:"NATSD_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"NATSD_PORT" envDefault:"4222"`

	AuthRequired bool `env:"NATSD_AUTH_REQUIRED" envDefault:"false"`
	SSLRequired  bool `env:"NATSD_SSL_REQUIRED" envDefault:"false"`

	MaxPayload int64 `env:"NATSD_MAX_PAYLOAD" envDefault:"1048576"`
	Proto      int   `env:"NATSD_PROTO" envDefault:"1"`

	ReadTimeout    time.Duration `env:"NATSD_READ_TIMEOUT" envDefault:"0s"`
	WriteTimeout   time.Duration `env:"NATSD_WRITE_TIMEOUT" envDefault:"0s"`
	ConnectTimeout time.Duration `env:"NATSD_CONNECT_TIMEOUT" envDefault:"0s"`

	FlushInterval time.Duration `env:"NATSD_FLUSH_INTERVAL" envDefault:"1ms"`
	WriteBufSize  int           `env:"NATSD_WRITE_BUF_SIZE" envDefault:"2048"`

	// PublishRateLimit is the per-connection PUB-frame rate in messages per
	// second; zero disables the limiter (the default, matching §8's test
	// scenarios which assume no throttling).
	PublishRateLimit int `env:"NATSD_PUBLISH_RATE_LIMIT" envDefault:"0"`

	MetricsAddr string `env:"NATSD_METRICS_ADDR" envDefault:":8222"`
	StatsPeriod time.Duration `env:"NATSD_STATS_PERIOD" envDefault:"10s"`

	LogLevel  string `env:"NATSD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"NATSD_LOG_FORMAT" envDefault:"json"`
}

// Load reads a .env file if present, then parses environment variables into
// a ServerConfig and validates it. A missing .env file is not an error.
func Load() (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("natsd: no .env file found, using environment variables only")
	}

	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate enforces the required-field and range checks spec.md §6 leaves
// to the external loader.
func (c *ServerConfig) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("NATSD_SERVER_ID is required")
	}
	if c.Host == "" {
		return fmt.Errorf("NATSD_HOST is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("NATSD_PORT must be 1-65535, got %d", c.Port)
	}
	if c.MaxPayload < 1 {
		return fmt.Errorf("NATSD_MAX_PAYLOAD must be > 0, got %d", c.MaxPayload)
	}
	if c.Proto < 0 {
		return fmt.Errorf("NATSD_PROTO must be >= 0, got %d", c.Proto)
	}
	if c.WriteBufSize < 1 {
		return fmt.Errorf("NATSD_WRITE_BUF_SIZE must be > 0, got %d", c.WriteBufSize)
	}
	if c.PublishRateLimit < 0 {
		return fmt.Errorf("NATSD_PUBLISH_RATE_LIMIT must be >= 0, got %d", c.PublishRateLimit)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("NATSD_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("NATSD_LOG_FORMAT must be one of json, text, pretty (got %q)", c.LogFormat)
	}

	return nil
}

// Print renders a human-readable startup banner.
func (c *ServerConfig) Print() {
	fmt.Println("=== natsd Configuration ===")
	fmt.Printf("Server ID:        %s\n", c.ServerID)
	fmt.Printf("Server Name:      %s\n", c.ServerName)
	fmt.Printf("Version:          %s\n", c.Version)
	fmt.Printf("Listen:           %s:%d\n", c.Host, c.Port)
	fmt.Printf("Auth Required:    %v\n", c.AuthRequired)
	fmt.Printf("SSL Required:     %v\n", c.SSLRequired)
	fmt.Printf("Max Payload:      %d bytes\n", c.MaxPayload)
	fmt.Printf("Proto:            %d\n", c.Proto)
	fmt.Printf("Flush Interval:   %s\n", c.FlushInterval)
	fmt.Printf("Write Buf Size:   %d bytes\n", c.WriteBufSize)
	fmt.Printf("Publish Rate Limit: %d/s (0 = unlimited)\n", c.PublishRateLimit)
	fmt.Printf("Metrics Addr:     %s\n", c.MetricsAddr)
	fmt.Printf("Log:              level=%s format=%s\n", c.LogLevel, c.LogFormat)
	fmt.Println("============================")
}

// LogConfig emits the same information as one structured log line.
func (c *ServerConfig) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("server_id", c.ServerID).
		Str("server_name", c.ServerName).
		Str("version", c.Version).
		Str("host", c.Host).
		Int("port", c.Port).
		Bool("auth_required", c.AuthRequired).
		Bool("ssl_required", c.SSLRequired).
		Int64("max_payload", c.MaxPayload).
		Int("proto", c.Proto).
		Dur("flush_interval", c.FlushInterval).
		Int("write_buf_size", c.WriteBufSize).
		Int("publish_rate_limit", c.PublishRateLimit).
		Str("metrics_addr", c.MetricsAddr).
		Dur("stats_period", c.StatsPeriod).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
