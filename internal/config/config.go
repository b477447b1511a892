// Package config provides centralized configuration management for the
// personnel import service. It loads configuration from environment
// variables with sensible defaults and validates all settings on startup
// to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Directory DirectoryConfig
	Import    ImportConfig
	Staging   StagingConfig
	Mail      MailCheckConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the upgrade request
	// (default: 15s). Websocket reads after the upgrade are not bound by it.
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DirectoryConfig holds directory store settings.
type DirectoryConfig struct {
	// DatabaseURL is the PostgreSQL connection string. When empty, the
	// service falls back to the in-memory directory store.
	DatabaseURL string `env:"DIRECTORY_DATABASE_URL" envAlt:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DIRECTORY_DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DIRECTORY_DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DIRECTORY_DB_MAX_CONN_LIFETIME" default:"1h"`
}

// ImportConfig holds file import processing settings.
type ImportConfig struct {
	// MaxRows is the maximum number of decoded rows per file (default: 10000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"10000"`

	// MaxConcurrent is the maximum number of files processed in parallel (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a processing slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// RowWorkers bounds the per-file row fan-out (default: 32)
	RowWorkers int `env:"IMPORT_ROW_WORKERS" default:"32"`

	// RowDelay is an artificial pause before each row's validation, kept
	// only so a human watching the client can see the progress bar move.
	// Zero disables it (default: 0s).
	RowDelay time.Duration `env:"IMPORT_ROW_DELAY" default:"0s"`
}

// StagingConfig holds settings for temporary upload storage.
type StagingConfig struct {
	// Dir is the directory uploaded payloads are staged under (default: uploads)
	Dir string `env:"STAGING_DIR" default:"uploads"`
}

// MailCheckConfig holds email domain verification settings.
type MailCheckConfig struct {
	// DisposableDomainsFile is an optional newline-separated list of
	// disposable domains loaded in addition to the embedded default set.
	DisposableDomainsFile string `env:"DISPOSABLE_DOMAINS_FILE"`

	// LookupTimeout bounds each DNS lookup (default: 5s)
	LookupTimeout time.Duration `env:"MAILCHECK_TIMEOUT" default:"5s"`
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
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
