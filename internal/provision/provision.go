// SPDX-License-Identifier: MIT

// Package provision adapts the external provisioning tool that creates and
// deletes per-tenant OS users on worker nodes. Both operations are
// idempotent: repeating a successful call is a no-op success.
package provision

import (
	"context"

	"github.com/orionhq/orion/internal/core"
)

// Provisioner is the outbound-only contract the control plane consumes.
type Provisioner interface {
	// CreateUser ensures the account exists on the node with the supplied
	// secret.
	CreateUser(ctx context.Context, node core.Node, user, secret string) error
	// DeleteUser ensures the account does not exist on the node. The secret
	// is advisory and may be empty.
	DeleteUser(ctx context.Context, node core.Node, user, secret string) error
}
