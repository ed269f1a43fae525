// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/probe"
)

// probeLog records which nodes were probed; probes run concurrently.
type probeLog struct {
	mu      sync.Mutex
	nodes   map[int64]bool
	verdict core.NodeStatus
}

func newProbeLog(verdict core.NodeStatus) *probeLog {
	return &probeLog{nodes: make(map[int64]bool), verdict: verdict}
}

func (p *probeLog) Check(_ context.Context, n core.Node) core.NodeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[n.ID] = true
	return p.verdict
}

func (p *probeLog) probed(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodes[id]
}

func TestHealthPassProbesOnlyStaleNodes(t *testing.T) {
	pl := newProbeLog(core.StatusAlive)
	f := newFixture(t, pl)

	fresh := fixedNow.Add(-time.Second)
	stale := fixedNow.Add(-time.Minute)
	freshID := f.mem.SeedNode(core.Node{Hostname: "fresh", Status: core.StatusAlive, LastChecked: &fresh})
	staleID := f.mem.SeedNode(core.Node{Hostname: "stale", Status: core.StatusDead, LastChecked: &stale})
	newID := f.mem.SeedNode(core.Node{Hostname: "new"})

	require.NoError(t, f.rc.healthPass(context.Background()))

	assert.False(t, pl.probed(freshID), "recently checked node skipped")
	assert.True(t, pl.probed(staleID))
	assert.True(t, pl.probed(newID), "never-checked node claimed first")

	n, _ := f.mem.Node(staleID)
	assert.Equal(t, core.StatusAlive, n.Status, "dead node resurrected by probe")
	require.NotNil(t, n.LastChecked)
	assert.Equal(t, fixedNow, *n.LastChecked)

	n, _ = f.mem.Node(newID)
	assert.Equal(t, core.StatusAlive, n.Status)
}

func TestHealthPassRecordsDeath(t *testing.T) {
	pl := newProbeLog(core.StatusDead)
	f := newFixture(t, pl)
	id := f.mem.SeedNode(core.Node{Hostname: "w1", Status: core.StatusAlive})

	require.NoError(t, f.rc.healthPass(context.Background()))

	n, _ := f.mem.Node(id)
	assert.Equal(t, core.StatusDead, n.Status)
}

func TestHealthPassMarkerPreventsImmediateReclaim(t *testing.T) {
	pl := newProbeLog(core.StatusAlive)
	f := newFixture(t, pl)
	id := f.mem.SeedNode(core.Node{Hostname: "w1", Status: core.StatusAlive})

	require.NoError(t, f.rc.healthPass(context.Background()))
	require.True(t, pl.probed(id))

	// Second pass within the stale period: the marker keeps the node out.
	pl.mu.Lock()
	pl.nodes = map[int64]bool{}
	pl.mu.Unlock()
	require.NoError(t, f.rc.healthPass(context.Background()))
	assert.False(t, pl.probed(id))
}

func TestHealthPassHonorsBatchLimit(t *testing.T) {
	pl := newProbeLog(core.StatusAlive)
	f := newFixture(t, pl)
	f.rc.cfg.HealthBatch = 2
	for i := 0; i < 5; i++ {
		f.mem.SeedNode(core.Node{Hostname: "w", SSHPort: 2200 + i})
	}

	require.NoError(t, f.rc.healthPass(context.Background()))

	pl.mu.Lock()
	probed := len(pl.nodes)
	pl.mu.Unlock()
	assert.Equal(t, 2, probed)
}

var _ probe.Prober = (*probeLog)(nil)
