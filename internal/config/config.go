// SPDX-License-Identifier: MIT

// Package config loads the process-wide configuration for the control plane.
// Everything is read once at startup and threaded through components
// explicitly; there are no mutable globals.
package config

import (
	"fmt"
	"time"
)

// Config is the complete control-plane configuration.
type Config struct {
	// HTTP surface
	ListenAddr  string
	MetricsAddr string // empty disables the metrics listener

	// Catalog
	DatabaseURL string

	// Credentials
	VaultKey  string
	JWTSecret string
	JWTTTL    time.Duration

	// Worker administrative access (probe + provisioner)
	WorkerSSHUser string
	WorkerSSHPass string

	// Provisioning playbooks, opaque to the core
	PlaybookCreate string
	PlaybookDelete string

	// Address resolution
	DockerHostAlias string

	// Timeouts
	ProbeTimeout     time.Duration
	ProvisionTimeout time.Duration

	// Reconciliation cadences
	HealthInterval  time.Duration
	MigrateInterval time.Duration
	ExpiryInterval  time.Duration
	ScrubInterval   time.Duration

	// Health staleness window; nodes checked more recently are not re-probed
	StalePeriod time.Duration

	// Per-iteration claim batch sizes
	HealthBatch  int
	MigrateBatch int
	ExpiryBatch  int
	ScrubBatch   int

	LogLevel string
}

// FromEnv builds a Config from the ORION_* environment with defaults matching
// the reference deployment.
func FromEnv() Config {
	return Config{
		ListenAddr:  ParseString("ORION_LISTEN", ":8080"),
		MetricsAddr: ParseString("ORION_METRICS_ADDR", ":9090"),

		DatabaseURL: ParseString("ORION_DATABASE_URL", ""),

		VaultKey:  ParseString("ORION_VAULT_KEY", ""),
		JWTSecret: ParseString("ORION_JWT_SECRET", ""),
		JWTTTL:    ParseDuration("ORION_JWT_TTL", time.Hour),

		WorkerSSHUser: ParseString("ORION_WORKER_SSH_USER", "root"),
		WorkerSSHPass: ParseString("ORION_WORKER_SSH_PASS", ""),

		PlaybookCreate: ParseString("ORION_PLAYBOOK_CREATE", "create_user"),
		PlaybookDelete: ParseString("ORION_PLAYBOOK_DELETE", "delete_user"),

		DockerHostAlias: ParseString("ORION_DOCKER_HOST_ALIAS", ""),

		ProbeTimeout:     ParseDuration("ORION_PROBE_TIMEOUT", 5*time.Second),
		ProvisionTimeout: ParseDuration("ORION_PROVISION_TIMEOUT", 30*time.Second),

		HealthInterval:  ParseDuration("ORION_HEALTH_INTERVAL", 5*time.Second),
		MigrateInterval: ParseDuration("ORION_MIGRATE_INTERVAL", 10*time.Second),
		ExpiryInterval:  ParseDuration("ORION_EXPIRY_INTERVAL", time.Minute),
		ScrubInterval:   ParseDuration("ORION_SCRUB_INTERVAL", time.Minute),

		StalePeriod: ParseDuration("ORION_STALE_PERIOD", 30*time.Second),

		HealthBatch:  ParseInt("ORION_HEALTH_BATCH", 10),
		MigrateBatch: ParseInt("ORION_MIGRATE_BATCH", 5),
		ExpiryBatch:  ParseInt("ORION_EXPIRY_BATCH", 20),
		ScrubBatch:   ParseInt("ORION_SCRUB_BATCH", 5),

		LogLevel: ParseString("ORION_LOG_LEVEL", "info"),
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("ORION_DATABASE_URL is required")
	}
	if c.VaultKey == "" {
		return fmt.Errorf("ORION_VAULT_KEY is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("ORION_JWT_SECRET is required")
	}
	if c.StalePeriod <= 0 {
		return fmt.Errorf("stale period must be positive")
	}
	for name, d := range map[string]time.Duration{
		"health interval":  c.HealthInterval,
		"migrate interval": c.MigrateInterval,
		"expiry interval":  c.ExpiryInterval,
		"scrub interval":   c.ScrubInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	for name, n := range map[string]int{
		"health batch":  c.HealthBatch,
		"migrate batch": c.MigrateBatch,
		"expiry batch":  c.ExpiryBatch,
		"scrub batch":   c.ScrubBatch,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	return nil
}
