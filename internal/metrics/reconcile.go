// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the control plane.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orion_probe_results_total",
		Help: "Health probe verdicts by outcome",
	}, []string{"outcome"}) // outcome=alive|dead

	migrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orion_migrations_total",
		Help: "Lease migrations off dead nodes by outcome",
	}, []string{"outcome"}) // outcome=moved|no_capacity|provision_failed

	expiryReclaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orion_expiry_reclaims_total",
		Help: "Expired leases reclaimed",
	})

	expiryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orion_expiry_retries_total",
		Help: "Expired leases left for retry after a provisioner failure",
	})

	scrubResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orion_scrub_results_total",
		Help: "Scrub sweeps by outcome",
	}, []string{"outcome"}) // outcome=cleared|retry

	loopDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orion_reconcile_loop_duration_seconds",
		Help:    "Duration of one reconciliation loop iteration",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"}) // loop=health|migrate|expiry|scrub
)

// RecordProbe counts one health probe verdict.
func RecordProbe(outcome string) {
	probeResults.WithLabelValues(outcome).Inc()
}

// RecordMigration counts one per-lease migration outcome.
func RecordMigration(outcome string) {
	migrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordExpiryReclaim counts a successfully reclaimed lease.
func RecordExpiryReclaim() {
	expiryReclaims.Inc()
}

// RecordExpiryRetry counts a lease left in the queue after a provisioner
// failure. A rising counter with a flat reclaim counter exposes an
// always-failing provisioner.
func RecordExpiryRetry() {
	expiryRetries.Inc()
}

// RecordScrub counts one scrub sweep outcome.
func RecordScrub(outcome string) {
	scrubResults.WithLabelValues(outcome).Inc()
}

// ObserveLoop records the duration of one loop iteration.
func ObserveLoop(loop string, d time.Duration) {
	loopDuration.WithLabelValues(loop).Observe(d.Seconds())
}
