// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/metrics"
)

// probeConcurrency bounds in-flight probes per pass; probes are slow (up to
// the probe timeout each) and independent.
const probeConcurrency = 4

// healthPass claims nodes not checked within the stale period, advances
// their last_checked marker inside the claim transaction, then probes them
// outside the lock. The marker is what keeps two replicas from probing the
// same node in the same window; the verdict lands in a short follow-up
// transaction per node.
func (r *Reconciler) healthPass(ctx context.Context) error {
	logger := r.logger.With().Str(log.FieldLoop, "health").Logger()
	now := r.now().UTC()
	cutoff := now.Add(-r.cfg.StalePeriod)

	var claimed []core.Node
	err := r.cat.WithTx(ctx, func(tx catalog.Tx) error {
		nodes, err := tx.ClaimStaleNodes(ctx, cutoff, r.cfg.HealthBatch)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if err := tx.TouchChecked(ctx, n.ID, now); err != nil {
				return err
			}
		}
		claimed = nodes
		return nil
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, n := range claimed {
		n := n
		g.Go(func() error {
			status := r.prober.Check(ctx, n)
			metrics.RecordProbe(string(status))

			err := r.cat.WithTx(ctx, func(tx catalog.Tx) error {
				return tx.SetStatus(ctx, n.ID, status, r.now().UTC())
			})
			if err != nil {
				logger.Warn().Err(err).
					Str(log.FieldEvent, "status_apply_failed").
					Int64(log.FieldNodeID, n.ID).
					Msg("probe verdict not recorded")
				return nil
			}
			if n.Status != status {
				logger.Info().
					Str(log.FieldEvent, "node_status_changed").
					Int64(log.FieldNodeID, n.ID).
					Str(log.FieldOldStatus, string(n.Status)).
					Str(log.FieldNewStatus, string(status)).
					Msg("node liveness transition")
			}
			return nil
		})
	}
	return g.Wait()
}
