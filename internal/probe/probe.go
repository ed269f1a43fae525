// SPDX-License-Identifier: MIT

// Package probe implements the liveness oracle for worker nodes.
package probe

import (
	"context"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/orionhq/orion/internal/core"
	xlog "github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/netutil"
)

// DefaultTimeout bounds a single liveness check.
const DefaultTimeout = 5 * time.Second

// Prober decides whether a node endpoint is alive or dead.
type Prober interface {
	Check(ctx context.Context, node core.Node) core.NodeStatus
}

// Func adapts a function to the Prober interface, for tests.
type Func func(ctx context.Context, node core.Node) core.NodeStatus

// Check implements Prober.
func (f Func) Check(ctx context.Context, node core.Node) core.NodeStatus {
	return f(ctx, node)
}

// SSH probes a node by dialing its SSH port and completing an authenticated
// handshake with the worker administrative credentials. Any failure within
// the time budget is reported as dead; the verdict is the oracle-level
// outcome, not a diagnosis.
type SSH struct {
	User     string
	Password string
	Timeout  time.Duration
	Resolver netutil.Resolver
}

// Check implements Prober.
func (p *SSH) Check(ctx context.Context, node core.Node) core.NodeStatus {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := p.Resolver.HostPort(node.IP, node.SSHPort)
	logger := xlog.WithComponent("probe")

	// Cheap TCP reachability first; the handshake reuses the same conn.
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Debug().
			Int64("node_id", node.ID).
			Str("addr", addr).
			Err(err).
			Msg("tcp dial failed")
		return core.StatusDead
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(deadline); err != nil {
		return core.StatusDead
	}

	cfg := &ssh.ClientConfig{
		User:            p.User,
		Auth:            []ssh.AuthMethod{ssh.Password(p.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- workers are ephemeral, keys rotate on reprovision
		Timeout:         timeout,
	}
	client, _, _, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		logger.Debug().
			Int64("node_id", node.ID).
			Str("addr", addr).
			Err(err).
			Msg("ssh handshake failed")
		return core.StatusDead
	}
	_ = client.Close()
	return core.StatusAlive
}
