/*
Package config loads process configuration for the booking server.

PURPOSE:
  Process-level settings only: where to listen, where the database lives,
  which origins may call the API, and how the expiry scheduler runs.
  Business rules (prices, minimum nights, buffer) are system parameters
  stored in the database and edited through /api/parameters.

PRECEDENCE (lowest to highest):
  1. Defaults
  2. .env file (joho/godotenv, a missing file is fine)
  3. Process environment
  4. Command-line flags (-port, -db)

ENVIRONMENT:
  PORT                    HTTP server port (default: 8080)
  DB_PATH                 SQLite database path (default: stay.db)
  CORS_ORIGINS            Comma-separated allowed origins
  EXPIRY_ENABLED          Run the stale-request scheduler (default: true)
  EXPIRY_CHECK_INTERVAL   Go duration, e.g. "30m" (default: 1h)
  DEMO_SCENARIOS          Mount /api/scenarios, which can wipe data (default: false)

SEE ALSO:
  - cmd/server/main.go: Uses Load and RegisterFlags
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration.
type Config struct {
	Port                int
	DBPath              string
	CORSOrigins         []string
	ExpiryEnabled       bool
	ExpiryCheckInterval time.Duration
	DemoScenarios       bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:                8080,
		DBPath:              "stay.db",
		ExpiryEnabled:       true,
		ExpiryCheckInterval: 1 * time.Hour,
	}
}

// Load reads the given .env files (".env" when none are given) and then the
// process environment. Variables already set in the environment win over
// the file.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("PORT: invalid integer %q", v)
		}
		cfg.Port = port
	}
	if v, ok := lookup("DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}
	if v, ok := lookup("EXPIRY_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("EXPIRY_ENABLED: invalid boolean %q", v)
		}
		cfg.ExpiryEnabled = enabled
	}
	if v, ok := lookup("EXPIRY_CHECK_INTERVAL"); ok && v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("EXPIRY_CHECK_INTERVAL: invalid duration %q", v)
		}
		cfg.ExpiryCheckInterval = interval
	}
	if v, ok := lookup("DEMO_SCENARIOS"); ok && v != "" {
		demo, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("DEMO_SCENARIOS: invalid boolean %q", v)
		}
		cfg.DemoScenarios = demo
	}

	return cfg, cfg.Validate()
}

// RegisterFlags binds the command-line overrides, using the current values
// as defaults.
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	flags.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	flags.BoolVar(&c.DemoScenarios, "demo", c.DemoScenarios, "Enable demo scenario endpoints")
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("database path must not be empty")
	}
	if c.ExpiryCheckInterval <= 0 {
		return fmt.Errorf("expiry check interval must be positive, got %v", c.ExpiryCheckInterval)
	}
	return nil
}
