// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/orionhq/orion/internal/core"
)

func (t *pgTx) CreateTenant(ctx context.Context, handle, passwordHash string, role core.Role) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO tenants (handle, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id`, handle, passwordHash, role).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, core.Errf(core.KindConflict, "tenant %q already exists", handle)
		}
		return 0, internalErr("create tenant", err)
	}
	return id, nil
}

func (t *pgTx) TenantByHandle(ctx context.Context, handle string) (core.Tenant, error) {
	var tn core.Tenant
	err := t.tx.QueryRow(ctx,
		`SELECT id, handle, password_hash, role FROM tenants WHERE handle = $1`, handle).
		Scan(&tn.ID, &tn.Handle, &tn.PasswordHash, &tn.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Tenant{}, core.Errf(core.KindNotFound, "tenant %q not found", handle)
	}
	if err != nil {
		return core.Tenant{}, internalErr("tenant by handle", err)
	}
	return tn, nil
}
