// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orionhq/orion/internal/core"
)

const nodeColumns = `id, hostname, ip, ssh_port, status, allocated, needs_cleanup, last_checked`

func scanNodes(rows pgx.Rows) ([]core.Node, error) {
	defer rows.Close()
	var nodes []core.Node
	for rows.Next() {
		var n core.Node
		if err := rows.Scan(&n.ID, &n.Hostname, &n.IP, &n.SSHPort, &n.Status,
			&n.Allocated, &n.NeedsCleanup, &n.LastChecked); err != nil {
			return nil, internalErr("scan node", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr("iterate nodes", err)
	}
	return nodes, nil
}

func (t *pgTx) ClaimEligibleNodes(ctx context.Context, k int, exclude int64) ([]core.Node, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE status = 'alive' AND allocated = FALSE AND needs_cleanup = FALSE
		  AND id <> $1
		ORDER BY last_checked DESC NULLS LAST
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, exclude, k)
	if err != nil {
		return nil, internalErr("claim eligible nodes", err)
	}
	return scanNodes(rows)
}

func (t *pgTx) ClaimStaleNodes(ctx context.Context, cutoff time.Time, limit int) ([]core.Node, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE last_checked IS NULL OR last_checked < $1
		ORDER BY last_checked ASC NULLS FIRST
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, cutoff, limit)
	if err != nil {
		return nil, internalErr("claim stale nodes", err)
	}
	return scanNodes(rows)
}

func (t *pgTx) ClaimDeadAllocatedNodes(ctx context.Context, limit int) ([]core.Node, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE status = 'dead' AND allocated = TRUE
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, internalErr("claim dead nodes", err)
	}
	return scanNodes(rows)
}

func (t *pgTx) ClaimCleanupNodes(ctx context.Context, limit int) ([]core.Node, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE status = 'alive' AND needs_cleanup = TRUE
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, internalErr("claim cleanup nodes", err)
	}
	return scanNodes(rows)
}

func (t *pgTx) MarkAllocated(ctx context.Context, nodeID int64) error {
	return t.execNode(ctx, `UPDATE nodes SET allocated = TRUE WHERE id = $1`, nodeID)
}

func (t *pgTx) MarkFree(ctx context.Context, nodeID int64) error {
	return t.execNode(ctx, `UPDATE nodes SET allocated = FALSE WHERE id = $1`, nodeID)
}

func (t *pgTx) SetCleanup(ctx context.Context, nodeID int64, needsCleanup bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE nodes SET needs_cleanup = $2 WHERE id = $1`, nodeID, needsCleanup)
	if err != nil {
		return internalErr("set cleanup", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("node", nodeID)
	}
	return nil
}

func (t *pgTx) SetStatus(ctx context.Context, nodeID int64, status core.NodeStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE nodes SET status = $2, last_checked = $3 WHERE id = $1`,
		nodeID, status, at.UTC())
	if err != nil {
		return internalErr("set status", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("node", nodeID)
	}
	return nil
}

func (t *pgTx) TouchChecked(ctx context.Context, nodeID int64, at time.Time) error {
	return t.execNode(ctx, `UPDATE nodes SET last_checked = $2 WHERE id = $1`, nodeID, at.UTC())
}

func (t *pgTx) InsertNode(ctx context.Context, hostname, ip string, sshPort int) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO nodes (hostname, ip, ssh_port, status)
		VALUES ($1, $2, $3, 'unknown')
		RETURNING id`, hostname, ip, sshPort).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, core.Errf(core.KindConflict, "node %s:%d already registered", hostname, sshPort)
		}
		return 0, internalErr("insert node", err)
	}
	return id, nil
}

func (t *pgTx) ListNodes(ctx context.Context) ([]core.Node, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
	if err != nil {
		return nil, internalErr("list nodes", err)
	}
	return scanNodes(rows)
}

func (t *pgTx) Reset(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM leases`); err != nil {
		return internalErr("reset leases", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM nodes`); err != nil {
		return internalErr("reset nodes", err)
	}
	return nil
}

func (t *pgTx) execNode(ctx context.Context, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return internalErr("update node", err)
	}
	if tag.RowsAffected() == 0 {
		if id, ok := args[0].(int64); ok {
			return core.NotFound("node", id)
		}
		return core.Errf(core.KindNotFound, "node not found")
	}
	return nil
}
