// SPDX-License-Identifier: MIT

// Package alloc implements the tenant-facing lease lifecycle: renting nodes,
// releasing them, extending windows and reading back credentials. Every
// operation runs inside a single catalog transaction so a failure anywhere
// leaves no partial allocation behind.
package alloc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/metrics"
	"github.com/orionhq/orion/internal/netutil"
	"github.com/orionhq/orion/internal/provision"
	"github.com/orionhq/orion/internal/vault"
)

// Allocation is one rented node as reported back to the tenant.
type Allocation struct {
	LeaseID     int64
	NodeID      int64
	Hostname    string
	Endpoint    string
	SSHPort     int
	User        string
	Secret      string
	LeasedFrom  time.Time
	LeasedUntil time.Time
}

// NodeView is one row of the node listing. Lease fields are zero for nodes
// without an active lease visible to the caller.
type NodeView struct {
	Node        core.Node
	Endpoint    string
	LeaseID     int64
	Tenant      string
	LeasedUntil *time.Time
}

// Service coordinates the catalog, provisioner and vault for lease
// operations.
type Service struct {
	catalog  catalog.Catalog
	prov     provision.Provisioner
	vault    *vault.Vault
	resolver netutil.Resolver
	logger   zerolog.Logger
	now      func() time.Time
}

// New wires an allocator over the given stores.
func New(cat catalog.Catalog, prov provision.Provisioner, v *vault.Vault, resolver netutil.Resolver) *Service {
	return &Service{
		catalog:  cat,
		prov:     prov,
		vault:    v,
		resolver: resolver,
		logger:   log.WithComponent("alloc"),
		now:      time.Now,
	}
}

// Rent leases count nodes to the principal for the given duration. The grant
// is all-or-nothing: if fewer than count eligible nodes exist, or any
// provisioning step fails, the transaction rolls back and no lease is
// recorded. A non-empty secret is used for every node; otherwise each node
// gets a fresh generated one.
func (s *Service) Rent(ctx context.Context, p core.Principal, count int, duration time.Duration, secret string) ([]Allocation, error) {
	if count < 1 {
		return nil, core.Errf(core.KindInternal, "node count must be at least 1")
	}
	if duration <= 0 {
		return nil, core.Errf(core.KindInternal, "lease duration must be positive")
	}

	var allocs []Allocation
	err := s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		allocs = allocs[:0]
		nodes, err := tx.ClaimEligibleNodes(ctx, count, 0)
		if err != nil {
			return err
		}
		if len(nodes) < count {
			return core.InsufficientCapacity(count, len(nodes))
		}

		from := s.now().UTC()
		until := from.Add(duration)
		for _, n := range nodes {
			sec := secret
			if sec == "" {
				if sec, err = generateSecret(); err != nil {
					return err
				}
			}
			enc, err := s.vault.Encrypt(sec)
			if err != nil {
				return err
			}
			leaseID, err := tx.InsertLease(ctx, n.ID, p.ID, from, until, enc)
			if err != nil {
				return err
			}
			if err := tx.MarkAllocated(ctx, n.ID); err != nil {
				return err
			}
			if err := s.prov.CreateUser(ctx, n, p.Handle, sec); err != nil {
				return core.Wrap(core.KindProvisioningFailed,
					fmt.Sprintf("create user %q on node %d", p.Handle, n.ID), err)
			}
			allocs = append(allocs, Allocation{
				LeaseID:     leaseID,
				NodeID:      n.ID,
				Hostname:    n.Hostname,
				Endpoint:    s.resolver.Resolve(n.IP),
				SSHPort:     n.SSHPort,
				User:        p.Handle,
				Secret:      sec,
				LeasedFrom:  from,
				LeasedUntil: until,
			})
		}
		return nil
	})
	if err != nil {
		switch core.KindOf(err) {
		case core.KindInsufficientCapacity:
			metrics.RecordRent("insufficient_capacity")
		case core.KindProvisioningFailed:
			metrics.RecordRent("provisioning_failed")
		default:
			metrics.RecordRent("error")
		}
		return nil, err
	}
	metrics.RecordRent("ok")

	for _, a := range allocs {
		s.logger.Info().
			Str(log.FieldEvent, "lease_granted").
			Int64(log.FieldLeaseID, a.LeaseID).
			Int64(log.FieldNodeID, a.NodeID).
			Int64(log.FieldTenantID, p.ID).
			Time("leased_until", a.LeasedUntil).
			Msg("node leased")
	}
	return allocs, nil
}

// Release ends a lease and frees its node. The worker-side user removal is
// best effort: the node is reclaimed even when the worker is unreachable,
// and the scrub loop picks up the leftover account later.
func (s *Service) Release(ctx context.Context, p core.Principal, leaseID int64) error {
	return s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		row, err := tx.LeaseRowForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		if !p.CanAccess(row.Lease) {
			return core.Errf(core.KindPermissionDenied, "lease %d belongs to another tenant", leaseID)
		}
		if !row.Lease.Active {
			return core.Errf(core.KindNotActive, "lease %d is not active", leaseID)
		}

		sec, err := s.vault.Decrypt(row.Lease.Secret)
		if err != nil {
			if !core.IsKind(err, core.KindDecryptionFailed) {
				return err
			}
			s.logger.Warn().
				Str(log.FieldEvent, "secret_unreadable").
				Int64(log.FieldLeaseID, leaseID).
				Msg("releasing without recovered secret")
			sec = ""
		}
		if err := s.prov.DeleteUser(ctx, row.Node, row.Handle, sec); err != nil {
			s.logger.Warn().Err(err).
				Str(log.FieldEvent, "release_deprovision_failed").
				Int64(log.FieldLeaseID, leaseID).
				Int64(log.FieldNodeID, row.Node.ID).
				Msg("user removal failed, reclaiming node anyway")
			if err := tx.SetCleanup(ctx, row.Node.ID, true); err != nil {
				return err
			}
		}
		if err := tx.DeactivateLease(ctx, leaseID); err != nil {
			return err
		}
		if err := tx.MarkFree(ctx, row.Node.ID); err != nil {
			return err
		}
		s.logger.Info().
			Str(log.FieldEvent, "lease_released").
			Int64(log.FieldLeaseID, leaseID).
			Int64(log.FieldNodeID, row.Node.ID).
			Msg("lease released")
		return nil
	})
}

// Extend pushes the lease end strictly forward by extra. Only active leases
// can be extended.
func (s *Service) Extend(ctx context.Context, p core.Principal, leaseID int64, extra time.Duration) (time.Time, error) {
	if extra <= 0 {
		return time.Time{}, core.Errf(core.KindInternal, "extension must be positive")
	}
	var newEnd time.Time
	err := s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		row, err := tx.LeaseRowForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		if !p.CanAccess(row.Lease) {
			return core.Errf(core.KindPermissionDenied, "lease %d belongs to another tenant", leaseID)
		}
		if !row.Lease.Active {
			return core.Errf(core.KindNotActive, "lease %d is not active", leaseID)
		}
		newEnd = row.Lease.LeasedUntil.Add(extra)
		return tx.UpdateLeaseEnd(ctx, leaseID, newEnd)
	})
	if err != nil {
		return time.Time{}, err
	}
	s.logger.Info().
		Str(log.FieldEvent, "lease_extended").
		Int64(log.FieldLeaseID, leaseID).
		Time("leased_until", newEnd).
		Msg("lease extended")
	return newEnd, nil
}

// ListNodes returns the fleet as visible to the principal: admins see every
// node with its active lease, tenants see only nodes they currently hold.
func (s *Service) ListNodes(ctx context.Context, p core.Principal) ([]NodeView, error) {
	var views []NodeView
	err := s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		views = views[:0]
		if !p.IsAdmin() {
			rows, err := tx.ActiveLeaseRowsForTenant(ctx, p.ID)
			if err != nil {
				return err
			}
			for _, r := range rows {
				views = append(views, s.viewOf(r.Node, r))
			}
			return nil
		}

		nodes, err := tx.ListNodes(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.ActiveLeaseRows(ctx)
		if err != nil {
			return err
		}
		byNode := make(map[int64]core.LeaseJoinedRow, len(rows))
		for _, r := range rows {
			byNode[r.Node.ID] = r
		}
		for _, n := range nodes {
			if r, ok := byNode[n.ID]; ok {
				views = append(views, s.viewOf(n, r))
				continue
			}
			views = append(views, NodeView{Node: n, Endpoint: s.resolver.Resolve(n.IP)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) viewOf(n core.Node, r core.LeaseJoinedRow) NodeView {
	until := r.Lease.LeasedUntil
	return NodeView{
		Node:        n,
		Endpoint:    s.resolver.Resolve(n.IP),
		LeaseID:     r.Lease.ID,
		Tenant:      r.Handle,
		LeasedUntil: &until,
	}
}

// LeaseSecret recovers the plaintext credential of an active lease. Only the
// owning tenant may read it; admins are deliberately excluded.
func (s *Service) LeaseSecret(ctx context.Context, p core.Principal, leaseID int64) (string, error) {
	var sec string
	err := s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		row, err := tx.LeaseRowForUpdate(ctx, leaseID)
		if err != nil {
			return err
		}
		if row.Lease.TenantID != p.ID {
			return core.Errf(core.KindPermissionDenied, "lease %d belongs to another tenant", leaseID)
		}
		if !row.Lease.Active {
			return core.Errf(core.KindNotActive, "lease %d is not active", leaseID)
		}
		sec, err = s.vault.Decrypt(row.Lease.Secret)
		return err
	})
	if err != nil {
		return "", err
	}
	return sec, nil
}

// RegisterNode records a worker in the catalog. Registration is idempotent:
// a worker re-announcing an existing (hostname, port) pair gets its current
// row back.
func (s *Service) RegisterNode(ctx context.Context, hostname, ip string, sshPort int) (core.Node, error) {
	var node core.Node
	err := s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		id, err := tx.InsertNode(ctx, hostname, ip, sshPort)
		if err == nil {
			node = core.Node{ID: id, Hostname: hostname, IP: ip, SSHPort: sshPort, Status: core.StatusUnknown}
			metrics.RecordNodeRegistered()
			s.logger.Info().
				Str(log.FieldEvent, "node_registered").
				Int64(log.FieldNodeID, id).
				Str(log.FieldHost, hostname).
				Int(log.FieldSSHPort, sshPort).
				Msg("worker registered")
			return nil
		}
		if !core.IsKind(err, core.KindConflict) {
			return err
		}
		nodes, err := tx.ListNodes(ctx)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if n.Hostname == hostname && n.SSHPort == sshPort {
				node = n
				return nil
			}
		}
		return core.Errf(core.KindInternal, "node %q exists but is not listable", hostname)
	})
	if err != nil {
		return core.Node{}, err
	}
	return node, nil
}

// Reset wipes all nodes and leases. Admin only.
func (s *Service) Reset(ctx context.Context, p core.Principal) error {
	if !p.IsAdmin() {
		return core.Errf(core.KindPermissionDenied, "reset requires the admin role")
	}
	err := s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		return tx.Reset(ctx)
	})
	if err != nil {
		return err
	}
	s.logger.Warn().Str(log.FieldEvent, "catalog_reset").Msg("nodes and leases wiped")
	return nil
}
