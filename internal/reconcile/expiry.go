// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"

	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/metrics"
)

// expiryPass reclaims leases whose window has closed. Claim and reclaim run
// in one transaction; a lease whose worker-side teardown fails is simply
// left untouched, so it still matches the claim predicate next iteration.
// Retry is unbounded; the retry counter is the operator's signal.
func (r *Reconciler) expiryPass(ctx context.Context) error {
	logger := r.logger.With().Str(log.FieldLoop, "expiry").Logger()

	return r.cat.WithTx(ctx, func(tx catalog.Tx) error {
		rows, err := tx.ClaimExpiredLeases(ctx, r.now().UTC(), r.cfg.ExpiryBatch)
		if err != nil {
			return err
		}
		for _, row := range rows {
			sec, err := r.decryptOrEmpty(logger, log.FieldLeaseID, row.Lease.ID, row.Lease.Secret)
			if err != nil {
				return err
			}
			if err := r.prov.DeleteUser(ctx, row.Node, row.Handle, sec); err != nil {
				logger.Warn().Err(err).
					Str(log.FieldEvent, "expiry_retry").
					Int64(log.FieldLeaseID, row.Lease.ID).
					Int64(log.FieldNodeID, row.Node.ID).
					Msg("user removal failed, lease left for retry")
				metrics.RecordExpiryRetry()
				continue
			}
			if err := tx.DeactivateLease(ctx, row.Lease.ID); err != nil {
				return err
			}
			if err := tx.MarkFree(ctx, row.Node.ID); err != nil {
				return err
			}
			metrics.RecordExpiryReclaim()
			logger.Info().
				Str(log.FieldEvent, "lease_expired").
				Int64(log.FieldLeaseID, row.Lease.ID).
				Int64(log.FieldNodeID, row.Node.ID).
				Int64(log.FieldTenantID, row.Lease.TenantID).
				Msg("expired lease reclaimed")
		}
		return nil
	})
}
