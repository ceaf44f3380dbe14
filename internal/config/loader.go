package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		// Primary env var, then alternate, then default
		value, ok := os.LookupEnv(envName)
		if !ok {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value, ok = os.LookupEnv(alt)
			}
		}
		if !ok || value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value, field.Tag.Get("unit")); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
// unit "bytes" accepts size suffixes on integer fields.
func setField(field reflect.Value, value, unit string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		switch {
		case field.Type() == durationType:
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		case unit == "bytes":
			n, err := parseByteSize(value)
			if err != nil {
				return err
			}
			field.SetInt(n)
		default:
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Comma-separated, whitespace trimmed, empties dropped
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// parseByteSize parses "1048576", "64KiB" or "100MB".
func parseByteSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size: %w", err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size: %s overflows", s)
	}
	return int64(n), nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT and SERVER_WRITE_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Upload validation
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}

	// Convert validation
	if c.Convert.MaxRowsPerSheet <= 0 || c.Convert.MaxRowsPerSheet > 1048575 {
		errs = append(errs, fmt.Sprintf("CONVERT_MAX_ROWS_PER_SHEET (%d) must be 1-1048575", c.Convert.MaxRowsPerSheet))
	}
	if c.Convert.SampleSize < 1024 {
		errs = append(errs, "CONVERT_SAMPLE_SIZE must be at least 1KiB")
	}
	if c.Convert.MaxColumnWidth <= 0 || c.Convert.MaxColumnWidth > 255 {
		errs = append(errs, fmt.Sprintf("CONVERT_MAX_COLUMN_WIDTH (%d) must be 1-255", c.Convert.MaxColumnWidth))
	}
	if c.Convert.MaxErrorRows < 0 {
		errs = append(errs, "CONVERT_MAX_ERROR_ROWS must be non-negative")
	}
	if c.Convert.ContextCheckInterval <= 0 {
		errs = append(errs, "CONVERT_CONTEXT_CHECK_INTERVAL must be positive")
	}

	// Storage validation
	if c.Storage.Dir == "" {
		errs = append(errs, "STORAGE_DIR is required")
	}
	if c.Storage.SweepInterval <= 0 {
		errs = append(errs, "STORAGE_SWEEP_INTERVAL must be positive")
	}
	if c.Storage.MaxAge <= 0 {
		errs = append(errs, "STORAGE_MAX_AGE must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.ConvertLimit <= 0) {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_CONVERT must be positive when rate limiting is enabled")
	}

	// Security validation
	for _, cidr := range c.Security.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Sprintf("TRUSTED_PROXIES entry %q is not a CIDR", cidr))
		}
	}

	// CORS validation
	for _, origin := range c.CORS.AllowedOrigins {
		if origin == "*" && c.CORS.AllowCredentials {
			errs = append(errs, "CORS_ALLOWED_ORIGINS cannot be * when CORS_ALLOW_CREDENTIALS is true")
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a one-line summary of the config for startup logging.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q, RequestTimeout: %s}, ", c.Server.Addr(), c.Server.RequestTimeout)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %s, MaxConcurrent: %d, Timeout: %s}, ",
		humanize.IBytes(uint64(c.Upload.MaxFileSize)), c.Upload.MaxConcurrent, c.Upload.Timeout)
	fmt.Fprintf(&b, "Convert: {MaxRowsPerSheet: %d, SampleSize: %s}, ",
		c.Convert.MaxRowsPerSheet, humanize.IBytes(uint64(c.Convert.SampleSize)))
	fmt.Fprintf(&b, "Storage: {Dir: %q, MaxAge: %s}, ", c.Storage.Dir, c.Storage.MaxAge)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d, Convert: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.ConvertLimit)
	fmt.Fprintf(&b, "CORS: {Origins: %d}, ", len(c.CORS.AllowedOrigins))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
