// Package config provides environment-driven configuration for the ledger kernel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FsyncMode controls event-store durability behavior (spec.md 6.4).
type FsyncMode string

const (
	FsyncAlways  FsyncMode = "always"
	FsyncBatched FsyncMode = "batched"
)

// Config holds all kernel configuration.
type Config struct {
	// Root data directory (spec.md 6.5).
	LedgerRoot string

	// Durability.
	Fsync FsyncMode

	// Logging.
	LogLevel  string
	LogFormat string

	// Metrics (ambient, spec.md SPEC_FULL 12.4).
	MetricsEnabled bool
	MetricsPort    int

	// Structural validation bounds (spec.md 4.1). Read and validated here;
	// ledger.Build applies its own fixed bounds and does not read these.
	MaxMetadataKeys  int
	MaxMetadataBytes int
	MaxCorrelationID int

	// Risk engine velocity limit (SPEC_FULL 12.3). Zero means disabled.
	WithdrawalVelocityPerMin float64

	// Background chain-integrity sweep (SPEC_FULL 12.5). Empty disables it.
	VerifyCronSchedule string
}

// Load reads configuration from an optional .env file (same directory
// discipline as the teacher: missing file is not an error) and then from
// the process environment.
func Load() (*Config, error) {
	envFile := filepath.Join(".", ".env")
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFile, err)
		}
	}

	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.LedgerRoot = getEnv("LEDGER_ROOT", "./data")

	fsync := strings.ToLower(getEnv("LEDGER_FSYNC", string(FsyncAlways)))
	switch FsyncMode(fsync) {
	case FsyncAlways:
		c.Fsync = FsyncAlways
	case FsyncBatched:
		return fmt.Errorf("LEDGER_FSYNC=batched is not permitted in phase 1; use 'always'")
	default:
		return fmt.Errorf("invalid LEDGER_FSYNC: %s", fsync)
	}

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", true)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	c.MaxMetadataKeys = getIntEnv("LEDGER_MAX_METADATA_KEYS", 64)
	c.MaxMetadataBytes = getIntEnv("LEDGER_MAX_METADATA_BYTES", 1024)
	c.MaxCorrelationID = getIntEnv("LEDGER_MAX_CORRELATION_ID_BYTES", 128)

	velocity, err := getFloatEnv("LEDGER_WITHDRAWAL_VELOCITY_PER_MIN", 0)
	if err != nil {
		return fmt.Errorf("invalid LEDGER_WITHDRAWAL_VELOCITY_PER_MIN: %w", err)
	}
	c.WithdrawalVelocityPerMin = velocity

	c.VerifyCronSchedule = getEnv("LEDGER_VERIFY_CRON", "")

	return nil
}

// Validate rejects configuration combinations that cannot be honored.
func (c *Config) Validate() error {
	if c.Fsync != FsyncAlways {
		return fmt.Errorf("fsync mode %q is not supported in phase 1", c.Fsync)
	}
	if c.MaxMetadataKeys <= 0 || c.MaxMetadataBytes <= 0 {
		return fmt.Errorf("metadata bounds must be positive")
	}
	if c.MetricsEnabled && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.WithdrawalVelocityPerMin < 0 {
		return fmt.Errorf("withdrawal velocity limit must not be negative")
	}
	return nil
}

// EventsDir returns the directory holding JSONL event files (spec.md 6.5).
func (c *Config) EventsDir() string {
	return filepath.Join(c.LedgerRoot, "events")
}

// ProjectionDir returns the directory holding the projection cache (spec.md 6.5).
func (c *Config) ProjectionDir() string {
	return filepath.Join(c.LedgerRoot, "projection")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	fv, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return fv, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}
