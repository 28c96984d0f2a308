package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load builds the daemon configuration from the environment.
//
// Every leaf field of the Database, Worker, Reports, Server and Logging
// sections names its variable in an env tag, with an optional envAlt
// fallback (DB_URL for DATABASE_URL), a default and a required flag. The
// checkout mode is normalized to lower case before Validate runs.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadSection(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg.Worker.CheckoutMode = strings.ToLower(strings.TrimSpace(cfg.Worker.CheckoutMode))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadSection fills one section struct, descending into nested sections.
func loadSection(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadSection(fv); err != nil {
				return err
			}
			continue
		}

		name, value, err := lookupEnv(field.Tag)
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}
		if err := setValue(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}

	return nil
}

// lookupEnv resolves a field's raw value: the env variable, then envAlt,
// then the default. An empty name means the field is not configurable.
func lookupEnv(tag reflect.StructTag) (name, value string, err error) {
	name = tag.Get("env")
	if name == "" {
		return "", "", nil
	}

	value = os.Getenv(name)
	if alt := tag.Get("envAlt"); value == "" && alt != "" {
		value = os.Getenv(alt)
	}
	if value != "" {
		return name, value, nil
	}

	if tag.Get("required") == "true" {
		return name, "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return name, tag.Get("default"), nil
}

// setValue parses value into a string, integer, duration or bool field.
func setValue(fv reflect.Value, value string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))

	case fv.Kind() == reflect.String:
		fv.SetString(value)

	case fv.CanInt():
		n, err := strconv.ParseInt(value, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)

	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", fv.Kind())
	}

	return nil
}

// Validate checks every section and reports all failures at once, so an
// operator fixes the environment in one pass.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Worker validation
	if c.Worker.Count <= 0 {
		errs = append(errs, "WORKER_COUNT must be positive")
	}
	// Every worker holds a connection for its lifetime; keep one spare for
	// the status server and the supervisor.
	if c.Worker.Count > 0 && c.Database.MaxConns < c.Worker.Count+1 {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= WORKER_COUNT+1 (%d)",
			c.Database.MaxConns, c.Worker.Count+1))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, "WORKER_POLL_INTERVAL must be positive")
	}
	switch strings.ToLower(c.Worker.CheckoutMode) {
	case CheckoutClaim, CheckoutLock:
	default:
		errs = append(errs, fmt.Sprintf("QUEUE_CHECKOUT_MODE (%q) must be one of: claim, lock", c.Worker.CheckoutMode))
	}
	if c.Worker.StuckAfter <= 0 {
		errs = append(errs, "QUEUE_STUCK_AFTER must be positive")
	}
	if c.Worker.SupervisorInterval <= 0 {
		errs = append(errs, "QUEUE_SUPERVISOR_INTERVAL must be positive")
	}

	// Reports validation
	if c.Reports.Dir == "" {
		errs = append(errs, "REPORTS_DIR is required")
	}
	if c.Reports.MaxFileSize <= 0 {
		errs = append(errs, "REPORT_MAX_FILE_SIZE must be positive")
	}

	// Server validation
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
		}
		if c.Server.ReadTimeout < 0 {
			errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
		}
		if c.Server.ShutdownTimeout <= 0 {
			errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
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

// String renders the config for the startup log with the database URL
// masked, since it usually carries a password.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Worker: {Count: %d, PollInterval: %s, CheckoutMode: %q}, ",
		c.Worker.Count, c.Worker.PollInterval, c.Worker.CheckoutMode))
	b.WriteString(fmt.Sprintf("Reports: {Dir: %q, MaxFileSize: %d}, ",
		c.Reports.Dir, c.Reports.MaxFileSize))
	b.WriteString(fmt.Sprintf("Server: {Enabled: %v, Host: %q, Port: %d}, ",
		c.Server.Enabled, c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
