// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/probe"
	"github.com/orionhq/orion/internal/provision"
	"github.com/orionhq/orion/internal/vault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mem   *catalog.Memory
	rec   *provision.Recorder
	vault *vault.Vault
	rc    *Reconciler
}

func newFixture(t *testing.T, prober probe.Prober) *fixture {
	t.Helper()
	v, err := vault.New("test-key")
	require.NoError(t, err)
	mem := catalog.NewMemory()
	rec := &provision.Recorder{}
	cfg := Config{
		HealthInterval:  time.Hour,
		MigrateInterval: time.Hour,
		ExpiryInterval:  time.Hour,
		ScrubInterval:   time.Hour,
		StalePeriod:     30 * time.Second,
		HealthBatch:     10,
		MigrateBatch:    5,
		ExpiryBatch:     20,
		ScrubBatch:      5,
	}
	rc := New(mem, prober, rec, v, cfg)
	rc.now = func() time.Time { return fixedNow }
	return &fixture{mem: mem, rec: rec, vault: v, rc: rc}
}

func (f *fixture) encrypt(t *testing.T, plaintext string) []byte {
	t.Helper()
	enc, err := f.vault.Encrypt(plaintext)
	require.NoError(t, err)
	return enc
}

func alwaysAlive() probe.Prober {
	return probe.Func(func(context.Context, core.Node) core.NodeStatus {
		return core.StatusAlive
	})
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	f := newFixture(t, alwaysAlive())
	nodeID := f.mem.SeedNode(core.Node{Hostname: "w1", IP: "10.0.0.1", SSHPort: 22})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.rc.Run(ctx) }()

	// The immediate first health pass should pick up the never-checked node.
	assert.Eventually(t, func() bool {
		n, ok := f.mem.Node(nodeID)
		return ok && n.Status == core.StatusAlive
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop after cancellation")
	}
}
