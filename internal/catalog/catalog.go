// SPDX-License-Identifier: MIT

// Package catalog is the durable store of nodes, leases and tenants. All
// coordination between the allocator and the reconciliation loops happens
// through its transactions: row locks are held to transaction end and
// work-queue claims skip rows locked by peers.
package catalog

import (
	"context"
	"time"

	"github.com/orionhq/orion/internal/core"
)

// Catalog opens transactions against the shared store.
type Catalog interface {
	// WithTx begins a transaction and runs fn inside it. A nil return from fn
	// commits; an error (or panic) rolls back every effect.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of primitives the control plane needs inside a transaction.
// Claim* methods acquire row locks with SKIP LOCKED semantics: a row already
// locked by a live peer transaction is never returned.
type Tx interface {
	// ClaimEligibleNodes selects up to k free, alive, clean nodes ordered by
	// most recent health check, locking them. exclude (if >0) is never
	// returned; the migration loop uses it to keep a dead node out of its own
	// replacement set.
	ClaimEligibleNodes(ctx context.Context, k int, exclude int64) ([]core.Node, error)

	// ClaimStaleNodes selects nodes whose last health check is missing or
	// older than cutoff.
	ClaimStaleNodes(ctx context.Context, cutoff time.Time, limit int) ([]core.Node, error)

	// ClaimDeadAllocatedNodes selects dead nodes that still hold allocations.
	ClaimDeadAllocatedNodes(ctx context.Context, limit int) ([]core.Node, error)

	// ClaimCleanupNodes selects alive nodes flagged needs_cleanup.
	ClaimCleanupNodes(ctx context.Context, limit int) ([]core.Node, error)

	// ClaimExpiredLeases selects active leases on allocated nodes whose
	// window has closed, joined with node and tenant handle.
	ClaimExpiredLeases(ctx context.Context, now time.Time, limit int) ([]core.LeaseJoinedRow, error)

	MarkAllocated(ctx context.Context, nodeID int64) error
	MarkFree(ctx context.Context, nodeID int64) error
	SetCleanup(ctx context.Context, nodeID int64, needsCleanup bool) error
	SetStatus(ctx context.Context, nodeID int64, status core.NodeStatus, at time.Time) error
	// TouchChecked updates last_checked only; the health loop uses it as the
	// claim marker before probing outside the lock.
	TouchChecked(ctx context.Context, nodeID int64, at time.Time) error

	InsertLease(ctx context.Context, nodeID, tenantID int64, from, until time.Time, secret []byte) (int64, error)
	DeactivateLease(ctx context.Context, leaseID int64) error
	UpdateLeaseEnd(ctx context.Context, leaseID int64, until time.Time) error
	ActiveLeasesOnNode(ctx context.Context, nodeID int64) ([]core.Lease, error)
	// LeaseRowForUpdate fetches a lease joined with its node and tenant
	// handle, locking the lease and node rows.
	LeaseRowForUpdate(ctx context.Context, leaseID int64) (core.LeaseJoinedRow, error)
	// HistoricalTenants enumerates every tenant that ever held a lease on the
	// node, with the encrypted secret of its most recent lease there.
	HistoricalTenants(ctx context.Context, nodeID int64) ([]core.HistoricalTenant, error)

	InsertNode(ctx context.Context, hostname, ip string, sshPort int) (int64, error)
	ListNodes(ctx context.Context) ([]core.Node, error)
	// ActiveLeaseRowsForTenant lists a tenant's active leases joined with
	// their nodes, for the tenant-facing node listing.
	ActiveLeaseRowsForTenant(ctx context.Context, tenantID int64) ([]core.LeaseJoinedRow, error)
	// ActiveLeaseRows lists every active lease joined with node and tenant,
	// without locking, for the admin node listing.
	ActiveLeaseRows(ctx context.Context) ([]core.LeaseJoinedRow, error)

	CreateTenant(ctx context.Context, handle, passwordHash string, role core.Role) (int64, error)
	TenantByHandle(ctx context.Context, handle string) (core.Tenant, error)
	TenantByID(ctx context.Context, id int64) (core.Tenant, error)

	// Reset wipes nodes and leases. Administrative use only.
	Reset(ctx context.Context) error
}
