// Package config loads the coordinator and automationctl binaries'
// settings from the environment: database DSN, message-bus/job runner
// tuning, per-job deadlines, bounded-concurrency knobs, and the secrets
// store address.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything cmd/coordinator and cmd/automationctl need at
// startup.
type Config struct {
	Database  DatabaseConfig
	Job       JobConfig
	SecretsAddr string
}

// DatabaseConfig holds the persistence layer's connection settings.
type DatabaseConfig struct {
	DSN string
}

// JobConfig holds the coordinator's per-job execution tuning.
type JobConfig struct {
	Deadline             time.Duration
	SourceConcurrency    int
	ExportConcurrency    int
	SourceFailureThreshold float64
}

// Defaults returns a Config with the same defaults internal/core.Coordinator
// falls back to when its own fields are left zero.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN: "file:invoicebridge.db?cache=shared",
		},
		Job: JobConfig{
			Deadline:               30 * time.Minute,
			SourceConcurrency:      8,
			ExportConcurrency:      4,
			SourceFailureThreshold: 1.0,
		},
	}
}

// Load returns Defaults() overridden by whichever of DATABASE_DSN,
// JOB_DEADLINE, SOURCE_CONCURRENCY, EXPORT_CONCURRENCY,
// SOURCE_FAILURE_THRESHOLD, and SECRETS_ADDR are set in the environment.
// A malformed numeric/duration override is ignored, leaving the default
// in place, rather than failing startup over one bad value.
func Load() Config {
	cfg := Defaults()

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if deadline := os.Getenv("JOB_DEADLINE"); deadline != "" {
		if parsed, err := time.ParseDuration(deadline); err == nil && parsed > 0 {
			cfg.Job.Deadline = parsed
		}
	}
	if sourceConcurrency := os.Getenv("SOURCE_CONCURRENCY"); sourceConcurrency != "" {
		if parsed, err := strconv.Atoi(sourceConcurrency); err == nil && parsed > 0 {
			cfg.Job.SourceConcurrency = parsed
		}
	}
	if exportConcurrency := os.Getenv("EXPORT_CONCURRENCY"); exportConcurrency != "" {
		if parsed, err := strconv.Atoi(exportConcurrency); err == nil && parsed > 0 {
			cfg.Job.ExportConcurrency = parsed
		}
	}
	if threshold := os.Getenv("SOURCE_FAILURE_THRESHOLD"); threshold != "" {
		if parsed, err := strconv.ParseFloat(threshold, 64); err == nil && parsed > 0 && parsed <= 1.0 {
			cfg.Job.SourceFailureThreshold = parsed
		}
	}
	// SECRETS_ADDR stays an opaque string: the vault/secrets-store client
	// itself is an external collaborator, not a repo dependency.
	cfg.SecretsAddr = os.Getenv("SECRETS_ADDR")

	return cfg
}
