// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orionhq/orion/internal/core"
)

const leaseJoinColumns = `
	l.id, l.node_id, l.tenant_id, l.leased_from, l.leased_until, l.active, l.secret,
	n.id, n.hostname, n.ip, n.ssh_port, n.status, n.allocated, n.needs_cleanup, n.last_checked,
	t.handle`

func scanLeaseJoinedRows(rows pgx.Rows) ([]core.LeaseJoinedRow, error) {
	defer rows.Close()
	var out []core.LeaseJoinedRow
	for rows.Next() {
		var r core.LeaseJoinedRow
		if err := rows.Scan(
			&r.Lease.ID, &r.Lease.NodeID, &r.Lease.TenantID,
			&r.Lease.LeasedFrom, &r.Lease.LeasedUntil, &r.Lease.Active, &r.Lease.Secret,
			&r.Node.ID, &r.Node.Hostname, &r.Node.IP, &r.Node.SSHPort, &r.Node.Status,
			&r.Node.Allocated, &r.Node.NeedsCleanup, &r.Node.LastChecked,
			&r.Handle,
		); err != nil {
			return nil, internalErr("scan lease row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr("iterate lease rows", err)
	}
	return out, nil
}

func (t *pgTx) InsertLease(ctx context.Context, nodeID, tenantID int64, from, until time.Time, secret []byte) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO leases (node_id, tenant_id, leased_from, leased_until, active, secret)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id`,
		nodeID, tenantID, from.UTC(), until.UTC(), secret).Scan(&id)
	if err != nil {
		return 0, internalErr("insert lease", err)
	}
	return id, nil
}

func (t *pgTx) DeactivateLease(ctx context.Context, leaseID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE leases SET active = FALSE WHERE id = $1`, leaseID)
	if err != nil {
		return internalErr("deactivate lease", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("lease", leaseID)
	}
	return nil
}

func (t *pgTx) UpdateLeaseEnd(ctx context.Context, leaseID int64, until time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE leases SET leased_until = $2 WHERE id = $1`, leaseID, until.UTC())
	if err != nil {
		return internalErr("update lease end", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("lease", leaseID)
	}
	return nil
}

func (t *pgTx) ActiveLeasesOnNode(ctx context.Context, nodeID int64) ([]core.Lease, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, node_id, tenant_id, leased_from, leased_until, active, secret
		FROM leases
		WHERE node_id = $1 AND active = TRUE
		FOR UPDATE`, nodeID)
	if err != nil {
		return nil, internalErr("active leases on node", err)
	}
	defer rows.Close()
	var leases []core.Lease
	for rows.Next() {
		var l core.Lease
		if err := rows.Scan(&l.ID, &l.NodeID, &l.TenantID,
			&l.LeasedFrom, &l.LeasedUntil, &l.Active, &l.Secret); err != nil {
			return nil, internalErr("scan lease", err)
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr("iterate leases", err)
	}
	return leases, nil
}

func (t *pgTx) LeaseRowForUpdate(ctx context.Context, leaseID int64) (core.LeaseJoinedRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+leaseJoinColumns+`
		FROM leases l
		JOIN nodes n ON n.id = l.node_id
		JOIN tenants t ON t.id = l.tenant_id
		WHERE l.id = $1
		FOR UPDATE OF l, n`, leaseID)
	if err != nil {
		return core.LeaseJoinedRow{}, internalErr("lease for update", err)
	}
	found, err := scanLeaseJoinedRows(rows)
	if err != nil {
		return core.LeaseJoinedRow{}, err
	}
	if len(found) == 0 {
		return core.LeaseJoinedRow{}, core.NotFound("lease", leaseID)
	}
	return found[0], nil
}

func (t *pgTx) ClaimExpiredLeases(ctx context.Context, now time.Time, limit int) ([]core.LeaseJoinedRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+leaseJoinColumns+`
		FROM leases l
		JOIN nodes n ON n.id = l.node_id
		JOIN tenants t ON t.id = l.tenant_id
		WHERE l.active = TRUE AND n.allocated = TRUE AND l.leased_until <= $1
		LIMIT $2
		FOR UPDATE OF l, n SKIP LOCKED`, now.UTC(), limit)
	if err != nil {
		return nil, internalErr("claim expired leases", err)
	}
	return scanLeaseJoinedRows(rows)
}

func (t *pgTx) HistoricalTenants(ctx context.Context, nodeID int64) ([]core.HistoricalTenant, error) {
	// Most recent lease per tenant on this node, active or not: a scrub must
	// remove every OS user that was ever provisioned here.
	rows, err := t.tx.Query(ctx, `
		SELECT DISTINCT ON (l.tenant_id) l.tenant_id, t.handle, l.secret
		FROM leases l
		JOIN tenants t ON t.id = l.tenant_id
		WHERE l.node_id = $1
		ORDER BY l.tenant_id, l.id DESC`, nodeID)
	if err != nil {
		return nil, internalErr("historical tenants", err)
	}
	defer rows.Close()
	var out []core.HistoricalTenant
	for rows.Next() {
		var h core.HistoricalTenant
		if err := rows.Scan(&h.TenantID, &h.Handle, &h.Secret); err != nil {
			return nil, internalErr("scan historical tenant", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr("iterate historical tenants", err)
	}
	return out, nil
}

func (t *pgTx) ActiveLeaseRowsForTenant(ctx context.Context, tenantID int64) ([]core.LeaseJoinedRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+leaseJoinColumns+`
		FROM leases l
		JOIN nodes n ON n.id = l.node_id
		JOIN tenants t ON t.id = l.tenant_id
		WHERE l.tenant_id = $1 AND l.active = TRUE
		ORDER BY l.id`, tenantID)
	if err != nil {
		return nil, internalErr("tenant lease rows", err)
	}
	return scanLeaseJoinedRows(rows)
}

func (t *pgTx) ActiveLeaseRows(ctx context.Context) ([]core.LeaseJoinedRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+leaseJoinColumns+`
		FROM leases l
		JOIN nodes n ON n.id = l.node_id
		JOIN tenants t ON t.id = l.tenant_id
		WHERE l.active = TRUE
		ORDER BY l.id`)
	if err != nil {
		return nil, internalErr("active lease rows", err)
	}
	return scanLeaseJoinedRows(rows)
}

func (t *pgTx) TenantByID(ctx context.Context, id int64) (core.Tenant, error) {
	var tn core.Tenant
	err := t.tx.QueryRow(ctx,
		`SELECT id, handle, password_hash, role FROM tenants WHERE id = $1`, id).
		Scan(&tn.ID, &tn.Handle, &tn.PasswordHash, &tn.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Tenant{}, core.NotFound("tenant", id)
	}
	if err != nil {
		return core.Tenant{}, internalErr("tenant by id", err)
	}
	return tn, nil
}
