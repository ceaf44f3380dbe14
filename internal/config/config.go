// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Convert  ConvertConfig
	Storage  StorageConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	CORS     CORSConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	// ReadTimeout is the maximum duration for reading the request, body included (default: 5m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"5m"`

	// WriteTimeout is the maximum duration for writing the response (default: 15m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"15m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 15m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"15m"`
}

// UploadConfig holds upload admission settings.
type UploadConfig struct {
	// MaxFileSize is the largest accepted upload; accepts 104857600, 100MB or 100MiB (default: 100MiB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"100MiB" unit:"bytes"`

	// MaxConcurrent is the maximum number of parallel conversions (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a conversion slot (default: 10s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"10s"`

	// Timeout is the maximum duration of a single conversion (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// ConvertConfig holds conversion engine settings.
type ConvertConfig struct {
	// MaxRowsPerSheet is the data row limit per sheet, at most 1048575 (default: 1000000)
	MaxRowsPerSheet int `env:"CONVERT_MAX_ROWS_PER_SHEET" default:"1000000"`

	// SampleSize is how many bytes are inspected for detection (default: 64KiB)
	SampleSize int64 `env:"CONVERT_SAMPLE_SIZE" default:"64KiB" unit:"bytes"`

	// MaxColumnWidth caps computed column widths (default: 50)
	MaxColumnWidth int `env:"CONVERT_MAX_COLUMN_WIDTH" default:"50"`

	// MaxErrorRows caps rows in the Errors sheet; 0 means the format limit (default: 0)
	MaxErrorRows int `env:"CONVERT_MAX_ERROR_ROWS" default:"0"`

	// ContextCheckInterval is how many rows pass between cancellation checks (default: 100)
	ContextCheckInterval int `env:"CONVERT_CONTEXT_CHECK_INTERVAL" default:"100"`

	// ScratchDir holds per-sheet spill files; empty means the OS temp dir
	ScratchDir string `env:"CONVERT_SCRATCH_DIR"`
}

// StorageConfig holds converted file storage settings.
type StorageConfig struct {
	// Dir is where converted workbooks wait for download (default: tmp)
	Dir string `env:"STORAGE_DIR" envAlt:"TMP_DIR" default:"tmp"`

	// SweepInterval is how often expired files are deleted (default: 30m)
	SweepInterval time.Duration `env:"STORAGE_SWEEP_INTERVAL" default:"30m"`

	// MaxAge is how long an undownloaded file is kept (default: 1h)
	MaxAge time.Duration `env:"STORAGE_MAX_AGE" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ConvertLimit is requests per minute per IP for the convert endpoint (default: 10)
	ConvertLimit int `env:"RATE_LIMIT_CONVERT" envAlt:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// CORSConfig holds cross-origin settings for browser front ends.
type CORSConfig struct {
	// AllowedOrigins is a comma-separated list of origins allowed to call the API
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://127.0.0.1:5500,http://localhost:5500,http://127.0.0.1:8000,http://localhost:8000"`

	// AllowCredentials lets browsers send cookies and auth headers (default: true)
	AllowCredentials bool `env:"CORS_ALLOW_CREDENTIALS" default:"true"`

	// MaxAge is how long preflight responses may be cached (default: 5m)
	MaxAge time.Duration `env:"CORS_MAX_AGE" default:"5m"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
