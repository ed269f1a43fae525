// SPDX-License-Identifier: MIT

// Package reconcile runs the background loops that converge catalog state
// with the fleet: health probing, lease migration off dead nodes, expiry
// reclamation and cleanup scrubbing. Loops are idempotent and safe to run
// from any number of replicas; coordination happens entirely through the
// catalog's skip-locked claims.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/metrics"
	"github.com/orionhq/orion/internal/probe"
	"github.com/orionhq/orion/internal/provision"
	"github.com/orionhq/orion/internal/vault"
)

// Config carries the cadences and batch sizes of the four loops.
type Config struct {
	HealthInterval  time.Duration
	MigrateInterval time.Duration
	ExpiryInterval  time.Duration
	ScrubInterval   time.Duration

	// StalePeriod is the health re-probe window: nodes checked within it are
	// not claimed again.
	StalePeriod time.Duration

	HealthBatch  int
	MigrateBatch int
	ExpiryBatch  int
	ScrubBatch   int
}

// Reconciler supervises the four loops over a shared catalog.
type Reconciler struct {
	cat    catalog.Catalog
	prober probe.Prober
	prov   provision.Provisioner
	vault  *vault.Vault
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New wires a reconciler. Run must be called to start the loops.
func New(cat catalog.Catalog, prober probe.Prober, prov provision.Provisioner, v *vault.Vault, cfg Config) *Reconciler {
	return &Reconciler{
		cat:    cat,
		prober: prober,
		prov:   prov,
		vault:  v,
		cfg:    cfg,
		logger: log.WithComponent("reconcile"),
		now:    time.Now,
	}
}

// Run starts all four loops and blocks until ctx is cancelled. Each loop
// performs an immediate first pass, then ticks on its own interval. Pass
// errors are logged, never surfaced: the loops rely on re-entry.
func (r *Reconciler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	loops := []struct {
		name     string
		interval time.Duration
		pass     func(context.Context) error
	}{
		{"health", r.cfg.HealthInterval, r.healthPass},
		{"migrate", r.cfg.MigrateInterval, r.migratePass},
		{"expiry", r.cfg.ExpiryInterval, r.expiryPass},
		{"scrub", r.cfg.ScrubInterval, r.scrubPass},
	}
	for _, l := range loops {
		l := l
		g.Go(func() error {
			return r.runLoop(ctx, l.name, l.interval, l.pass)
		})
	}
	return g.Wait()
}

func (r *Reconciler) runLoop(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) error {
	logger := r.logger.With().Str(log.FieldLoop, name).Logger()

	run := func() {
		start := time.Now()
		if err := pass(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).
				Str(log.FieldEvent, "pass_failed").
				Msg("reconciliation pass failed")
		}
		metrics.ObserveLoop(name, time.Since(start))
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			logger.Info().Str(log.FieldEvent, "loop_stopped").Msg("shutting down")
			return ctx.Err()
		}
	}
}

// decryptOrEmpty recovers a lease secret, degrading unreadable ciphertext to
// the empty string. The provisioner treats the secret as advisory on delete,
// so losing it must never block reclamation.
func (r *Reconciler) decryptOrEmpty(logger zerolog.Logger, leaseOrNode string, id int64, ciphertext []byte) (string, error) {
	sec, err := r.vault.Decrypt(ciphertext)
	if err == nil {
		return sec, nil
	}
	if !core.IsKind(err, core.KindDecryptionFailed) {
		return "", err
	}
	logger.Warn().
		Str(log.FieldEvent, "secret_unreadable").
		Int64(leaseOrNode, id).
		Msg("proceeding without recovered secret")
	return "", nil
}
