// SPDX-License-Identifier: MIT

// Package core defines the typed records and error taxonomy shared by the
// catalog, the allocator and the reconciliation loops.
package core

import "time"

// NodeStatus is the liveness verdict recorded by the health loop.
type NodeStatus string

const (
	StatusUnknown NodeStatus = "unknown"
	StatusAlive   NodeStatus = "alive"
	StatusDead    NodeStatus = "dead"
)

// Role distinguishes ordinary tenants from operators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Node is a worker slot in the fleet.
type Node struct {
	ID           int64
	Hostname     string
	IP           string
	SSHPort      int
	Status       NodeStatus
	Allocated    bool
	NeedsCleanup bool
	LastChecked  *time.Time
}

// Lease is a tenant's hold on one node over a time window.
type Lease struct {
	ID          int64
	NodeID      int64
	TenantID    int64
	LeasedFrom  time.Time
	LeasedUntil time.Time
	Active      bool
	Secret      []byte // encrypted at rest, see vault
}

// Tenant is a principal that may hold leases. Handle doubles as the OS user
// name created on workers.
type Tenant struct {
	ID           int64
	Handle       string
	PasswordHash string
	Role         Role
}

// LeaseJoinedRow carries a lease together with its node and tenant, as
// returned by the expiry and release paths.
type LeaseJoinedRow struct {
	Lease  Lease
	Node   Node
	Handle string
}

// HistoricalTenant identifies a tenant that ever held a lease on a node,
// with the encrypted secret of its most recent lease there.
type HistoricalTenant struct {
	TenantID int64
	Handle   string
	Secret   []byte
}

// Principal is the authenticated identity of a caller.
type Principal struct {
	ID     int64
	Handle string
	Role   Role
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanAccess reports whether the principal may operate on the given lease.
func (p Principal) CanAccess(l Lease) bool {
	return p.IsAdmin() || l.TenantID == p.ID
}
