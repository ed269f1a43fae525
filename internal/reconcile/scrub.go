// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/metrics"
)

// scrubPass sanitizes resurrected nodes before they re-enter the eligible
// pool. Every tenant that ever held a lease on the node gets a deleteUser
// call: after a death-and-return, accounts of since-migrated tenants may
// still exist on the box, and cleaning only current leases would leak them.
// The needs_cleanup flag is cleared only when every removal succeeds.
func (r *Reconciler) scrubPass(ctx context.Context) error {
	logger := r.logger.With().Str(log.FieldLoop, "scrub").Logger()

	return r.cat.WithTx(ctx, func(tx catalog.Tx) error {
		nodes, err := tx.ClaimCleanupNodes(ctx, r.cfg.ScrubBatch)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			cleared, err := r.scrubNode(ctx, tx, logger, n)
			if err != nil {
				return err
			}
			if cleared {
				metrics.RecordScrub("cleared")
			} else {
				metrics.RecordScrub("retry")
			}
		}
		return nil
	})
}

func (r *Reconciler) scrubNode(ctx context.Context, tx catalog.Tx, logger zerolog.Logger, n core.Node) (bool, error) {
	tenants, err := tx.HistoricalTenants(ctx, n.ID)
	if err != nil {
		return false, err
	}

	failed := false
	for _, h := range tenants {
		sec, err := r.decryptOrEmpty(logger, log.FieldNodeID, n.ID, h.Secret)
		if err != nil {
			return false, err
		}
		if err := r.prov.DeleteUser(ctx, n, h.Handle, sec); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "scrub_delete_failed").
				Int64(log.FieldNodeID, n.ID).
				Int64(log.FieldTenantID, h.TenantID).
				Msg("historical user removal failed, node stays flagged")
			failed = true
		}
	}
	if failed {
		return false, nil
	}

	if err := tx.SetCleanup(ctx, n.ID, false); err != nil {
		return false, err
	}
	logger.Info().
		Str(log.FieldEvent, "node_scrubbed").
		Int64(log.FieldNodeID, n.ID).
		Int("tenants", len(tenants)).
		Msg("node sanitized and readmitted")
	return true, nil
}
