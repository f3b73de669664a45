package config

import (
	"testing"
	"time"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg := Load()
	want := Defaults()
	if cfg.Database.DSN != want.Database.DSN {
		t.Errorf("DSN = %q, want %q", cfg.Database.DSN, want.Database.DSN)
	}
	if cfg.Job.Deadline != want.Job.Deadline {
		t.Errorf("Deadline = %v, want %v", cfg.Job.Deadline, want.Job.Deadline)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("JOB_DEADLINE", "10m")
	t.Setenv("SOURCE_CONCURRENCY", "3")
	t.Setenv("EXPORT_CONCURRENCY", "2")
	t.Setenv("SOURCE_FAILURE_THRESHOLD", "0.5")
	t.Setenv("SECRETS_ADDR", "vault://secrets/invoicebridge")

	cfg := Load()
	if cfg.Database.DSN != "file:test.db" {
		t.Errorf("DSN = %q, want file:test.db", cfg.Database.DSN)
	}
	if cfg.Job.Deadline != 10*time.Minute {
		t.Errorf("Deadline = %v, want 10m", cfg.Job.Deadline)
	}
	if cfg.Job.SourceConcurrency != 3 {
		t.Errorf("SourceConcurrency = %d, want 3", cfg.Job.SourceConcurrency)
	}
	if cfg.Job.ExportConcurrency != 2 {
		t.Errorf("ExportConcurrency = %d, want 2", cfg.Job.ExportConcurrency)
	}
	if cfg.Job.SourceFailureThreshold != 0.5 {
		t.Errorf("SourceFailureThreshold = %v, want 0.5", cfg.Job.SourceFailureThreshold)
	}
	if cfg.SecretsAddr != "vault://secrets/invoicebridge" {
		t.Errorf("SecretsAddr = %q, want vault://secrets/invoicebridge", cfg.SecretsAddr)
	}
}

func TestLoadIgnoresMalformedOverrides(t *testing.T) {
	t.Setenv("JOB_DEADLINE", "not-a-duration")
	t.Setenv("SOURCE_CONCURRENCY", "not-a-number")

	cfg := Load()
	want := Defaults()
	if cfg.Job.Deadline != want.Job.Deadline {
		t.Errorf("Deadline = %v, want default %v on malformed input", cfg.Job.Deadline, want.Job.Deadline)
	}
	if cfg.Job.SourceConcurrency != want.Job.SourceConcurrency {
		t.Errorf("SourceConcurrency = %d, want default %d on malformed input", cfg.Job.SourceConcurrency, want.Job.SourceConcurrency)
	}
}
