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

// migratePass relocates active leases off dead nodes. The whole batch runs
// in one transaction: dead nodes are claimed skip-locked, replacements are
// claimed and marked allocated before commit, so concurrent replicas can
// neither fight over a dead node nor over a replacement. Provisioning the
// replacement happens inside the transaction on purpose: the new placement
// is committed even when the provisioner fails, keeping the catalog the
// single source of truth.
func (r *Reconciler) migratePass(ctx context.Context) error {
	return r.cat.WithTx(ctx, func(tx catalog.Tx) error {
		dead, err := tx.ClaimDeadAllocatedNodes(ctx, r.cfg.MigrateBatch)
		if err != nil {
			return err
		}
		for _, n := range dead {
			if err := r.migrateNode(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Reconciler) migrateNode(ctx context.Context, tx catalog.Tx, dead core.Node) error {
	logger := r.logger.With().
		Str(log.FieldLoop, "migrate").
		Int64(log.FieldNodeID, dead.ID).
		Logger()

	leases, err := tx.ActiveLeasesOnNode(ctx, dead.ID)
	if err != nil {
		return err
	}

	if len(leases) > 0 {
		replacements, err := tx.ClaimEligibleNodes(ctx, len(leases), dead.ID)
		if err != nil {
			return err
		}
		for i, l := range leases {
			if i >= len(replacements) {
				logger.Warn().
					Str(log.FieldEvent, "migration_shortfall").
					Int64(log.FieldLeaseID, l.ID).
					Int64(log.FieldTenantID, l.TenantID).
					Msg("no eligible replacement for lease")
				metrics.RecordMigration("no_capacity")
				continue
			}
			if err := r.moveLease(ctx, tx, logger, l, replacements[i]); err != nil {
				return err
			}
		}
	}

	if err := tx.MarkFree(ctx, dead.ID); err != nil {
		return err
	}
	if err := tx.SetCleanup(ctx, dead.ID, true); err != nil {
		return err
	}
	logger.Info().
		Str(log.FieldEvent, "dead_node_retired").
		Int("leases", len(leases)).
		Msg("dead node freed and flagged for scrub")
	return nil
}

// moveLease re-homes one lease: the old record is deactivated and a new one
// is created on the target with the identical window and encrypted secret.
func (r *Reconciler) moveLease(ctx context.Context, tx catalog.Tx, logger zerolog.Logger, l core.Lease, target core.Node) error {
	if err := tx.DeactivateLease(ctx, l.ID); err != nil {
		return err
	}
	newID, err := tx.InsertLease(ctx, target.ID, l.TenantID, l.LeasedFrom, l.LeasedUntil, l.Secret)
	if err != nil {
		return err
	}
	if err := tx.MarkAllocated(ctx, target.ID); err != nil {
		return err
	}

	tenant, err := tx.TenantByID(ctx, l.TenantID)
	if err != nil {
		return err
	}
	sec, err := r.decryptOrEmpty(logger, log.FieldLeaseID, l.ID, l.Secret)
	if err != nil {
		return err
	}
	if err := r.prov.CreateUser(ctx, target, tenant.Handle, sec); err != nil {
		// Committed anyway; the tenant sees the new endpoint and may need
		// operator help until the account exists.
		logger.Error().Err(err).
			Str(log.FieldEvent, "migration_provision_failed").
			Int64(log.FieldLeaseID, newID).
			Int64("target_node_id", target.ID).
			Msg("replacement user creation failed")
		metrics.RecordMigration("provision_failed")
	} else {
		metrics.RecordMigration("moved")
	}

	logger.Info().
		Str(log.FieldEvent, "lease_migrated").
		Int64("old_lease_id", l.ID).
		Int64(log.FieldLeaseID, newID).
		Int64("target_node_id", target.ID).
		Int64(log.FieldTenantID, l.TenantID).
		Msg("lease moved off dead node")
	return nil
}
