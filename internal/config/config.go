// Package config provides centralized configuration management for the parser daemon.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Worker   WorkerConfig
	Reports  ReportsConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 8)
	MaxConns int `env:"DB_MAX_CONNS" default:"8"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Checkout modes for claiming submission queue jobs.
const (
	CheckoutClaim = "claim" // row-locked claim statement, safe across processes
	CheckoutLock  = "lock"  // process-wide mutex around read-then-mark
)

// WorkerConfig holds submission processing settings.
type WorkerConfig struct {
	// Count is the number of parser workers, each owning one connection (default: 4)
	Count int `env:"WORKER_COUNT" default:"4"`

	// PollInterval is how long an idle worker sleeps before checking the queue again (default: 5s)
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" default:"5s"`

	// CheckoutMode selects how jobs are claimed: claim or lock (default: claim)
	CheckoutMode string `env:"QUEUE_CHECKOUT_MODE" default:"claim"`

	// StuckAfter is how long a job may stay assigned or in progress before it is reported (default: 1h)
	StuckAfter time.Duration `env:"QUEUE_STUCK_AFTER" default:"1h"`

	// SupervisorInterval is how often stuck jobs are looked for (default: 10m)
	SupervisorInterval time.Duration `env:"QUEUE_SUPERVISOR_INTERVAL" default:"10m"`
}

// ReportsConfig holds settings for submitted report files.
type ReportsConfig struct {
	// Dir is the directory queue filenames are resolved against (default: /var/lib/rteval/queue)
	Dir string `env:"REPORTS_DIR" default:"/var/lib/rteval/queue"`

	// MaxFileSize is the largest report accepted, in bytes (default: 64MB)
	MaxFileSize int64 `env:"REPORT_MAX_FILE_SIZE" default:"67108864"`
}

// ServerConfig holds settings for the read-only status server.
type ServerConfig struct {
	// Enabled starts the status server alongside the workers (default: true)
	Enabled bool `env:"STATUS_ENABLED" default:"true"`

	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 9180)
	Port int `env:"SERVER_PORT" default:"9180"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 15s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"15s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
