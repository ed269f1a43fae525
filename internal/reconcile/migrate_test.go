// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/provision"
)

func TestMigrationRelocatesLease(t *testing.T) {
	f := newFixture(t, alwaysAlive())
	tenantID := f.mem.SeedTenant(core.Tenant{Handle: "ada"})
	deadID := f.mem.SeedNode(core.Node{Hostname: "dead", Status: core.StatusDead, Allocated: true})
	replID := f.mem.SeedNode(core.Node{Hostname: "repl", Status: core.StatusAlive})

	enc := f.encrypt(t, "hunter2")
	from := fixedNow.Add(-time.Hour)
	until := fixedNow.Add(time.Hour)
	oldID := f.mem.SeedLease(core.Lease{
		NodeID: deadID, TenantID: tenantID,
		LeasedFrom: from, LeasedUntil: until,
		Active: true, Secret: enc,
	})

	require.NoError(t, f.rc.migratePass(context.Background()))

	old, _ := f.mem.Lease(oldID)
	assert.False(t, old.Active)

	leases := f.mem.Leases()
	require.Len(t, leases, 2)
	moved := leases[1]
	assert.True(t, moved.Active)
	assert.Equal(t, replID, moved.NodeID)
	assert.Equal(t, tenantID, moved.TenantID)
	assert.Equal(t, from, moved.LeasedFrom, "window preserved")
	assert.Equal(t, until, moved.LeasedUntil)
	assert.Equal(t, enc, moved.Secret, "encrypted secret carried over verbatim")

	repl, _ := f.mem.Node(replID)
	assert.True(t, repl.Allocated)
	dead, _ := f.mem.Node(deadID)
	assert.False(t, dead.Allocated)
	assert.True(t, dead.NeedsCleanup)

	creates := f.rec.CallsOf(provision.OpCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, replID, creates[0].NodeID)
	assert.Equal(t, "ada", creates[0].User)
	assert.Equal(t, "hunter2", creates[0].Secret, "replacement gets the decrypted secret")
}

func TestMigrationShortfallMovesWhatItCan(t *testing.T) {
	f := newFixture(t, alwaysAlive())
	t1 := f.mem.SeedTenant(core.Tenant{Handle: "ada"})
	t2 := f.mem.SeedTenant(core.Tenant{Handle: "bob"})
	deadID := f.mem.SeedNode(core.Node{Hostname: "dead", Status: core.StatusDead, Allocated: true})
	replID := f.mem.SeedNode(core.Node{Hostname: "repl", Status: core.StatusAlive})

	until := fixedNow.Add(time.Hour)
	l1 := f.mem.SeedLease(core.Lease{
		NodeID: deadID, TenantID: t1,
		LeasedFrom: fixedNow.Add(-time.Hour), LeasedUntil: until,
		Active: true, Secret: f.encrypt(t, "a"),
	})
	l2 := f.mem.SeedLease(core.Lease{
		NodeID: deadID, TenantID: t2,
		LeasedFrom: fixedNow.Add(-time.Hour), LeasedUntil: until,
		Active: true, Secret: f.encrypt(t, "b"),
	})

	require.NoError(t, f.rc.migratePass(context.Background()))

	first, _ := f.mem.Lease(l1)
	assert.False(t, first.Active, "first lease relocated")
	second, _ := f.mem.Lease(l2)
	assert.True(t, second.Active, "shortfall lease left in place")

	repl, _ := f.mem.Node(replID)
	assert.True(t, repl.Allocated)
	dead, _ := f.mem.Node(deadID)
	assert.False(t, dead.Allocated)
	assert.True(t, dead.NeedsCleanup)
	assert.Len(t, f.rec.CallsOf(provision.OpCreate), 1)
}

func TestMigrationCommitsDespiteProvisionFailure(t *testing.T) {
	f := newFixture(t, alwaysAlive())
	tenantID := f.mem.SeedTenant(core.Tenant{Handle: "ada"})
	deadID := f.mem.SeedNode(core.Node{Hostname: "dead", Status: core.StatusDead, Allocated: true})
	replID := f.mem.SeedNode(core.Node{Hostname: "repl", Status: core.StatusAlive})
	f.mem.SeedLease(core.Lease{
		NodeID: deadID, TenantID: tenantID,
		LeasedFrom: fixedNow.Add(-time.Hour), LeasedUntil: fixedNow.Add(time.Hour),
		Active: true, Secret: f.encrypt(t, "s"),
	})
	f.rec.CreateErr = func(core.Node, string) error { return errors.New("ansible exited 2") }

	require.NoError(t, f.rc.migratePass(context.Background()))

	leases := f.mem.Leases()
	require.Len(t, leases, 2)
	assert.True(t, leases[1].Active, "placement recorded even though provisioning failed")
	assert.Equal(t, replID, leases[1].NodeID)
	dead, _ := f.mem.Node(deadID)
	assert.True(t, dead.NeedsCleanup)
}

func TestMigrationRetiresLeaselessDeadNode(t *testing.T) {
	f := newFixture(t, alwaysAlive())
	deadID := f.mem.SeedNode(core.Node{Hostname: "dead", Status: core.StatusDead, Allocated: true})

	require.NoError(t, f.rc.migratePass(context.Background()))

	dead, _ := f.mem.Node(deadID)
	assert.False(t, dead.Allocated)
	assert.True(t, dead.NeedsCleanup)
	assert.Empty(t, f.rec.Calls())
}
