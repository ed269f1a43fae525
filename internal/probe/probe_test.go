// SPDX-License-Identifier: MIT

package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/core"
)

func TestCheckDeadWhenPortClosed(t *testing.T) {
	// Grab a port and close it again so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	p := &SSH{User: "root", Password: "pw", Timeout: time.Second}
	status := p.Check(context.Background(), core.Node{ID: 1, IP: "127.0.0.1", SSHPort: port})
	assert.Equal(t, core.StatusDead, status)
}

func TestCheckDeadWhenNotSSH(t *testing.T) {
	// A listener that accepts and stays silent never completes a handshake;
	// the probe must give up within its budget.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer func() { _ = conn.Close() }()
		}
	}()

	port := l.Addr().(*net.TCPAddr).Port
	p := &SSH{User: "root", Password: "pw", Timeout: 500 * time.Millisecond}

	start := time.Now()
	status := p.Check(context.Background(), core.Node{ID: 1, IP: "127.0.0.1", SSHPort: port})
	assert.Equal(t, core.StatusDead, status)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCheckHonorsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Reserved TEST-NET address, traffic is blackholed.
	p := &SSH{User: "root", Password: "pw", Timeout: 30 * time.Second}
	start := time.Now()
	status := p.Check(ctx, core.Node{ID: 1, IP: "192.0.2.1", SSHPort: 22})
	assert.Equal(t, core.StatusDead, status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFuncAdapter(t *testing.T) {
	f := Func(func(context.Context, core.Node) core.NodeStatus { return core.StatusAlive })
	assert.Equal(t, core.StatusAlive, f.Check(context.Background(), core.Node{}))
}
