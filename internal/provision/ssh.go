// SPDX-License-Identifier: MIT

package provision

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/orionhq/orion/internal/core"
	xlog "github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/netutil"
)

// DefaultTimeout bounds a single provisioning call.
const DefaultTimeout = 30 * time.Second

// SSH executes the configured provisioning playbooks on the worker over an
// administrative SSH session. A playbook identifier is the remote command to
// run; it receives the target user and secret as quoted arguments and owns
// the idempotency contract (recreating an existing user or deleting a
// missing one must succeed).
type SSH struct {
	User           string
	Password       string
	CreatePlaybook string
	DeletePlaybook string
	Timeout        time.Duration
	Resolver       netutil.Resolver
}

// CreateUser implements Provisioner.
func (p *SSH) CreateUser(ctx context.Context, node core.Node, user, secret string) error {
	return p.run(ctx, node, p.CreatePlaybook, user, secret)
}

// DeleteUser implements Provisioner.
func (p *SSH) DeleteUser(ctx context.Context, node core.Node, user, secret string) error {
	return p.run(ctx, node, p.DeletePlaybook, user, secret)
}

func (p *SSH) run(ctx context.Context, node core.Node, playbook, user, secret string) error {
	if playbook == "" {
		return core.Errf(core.KindInternal, "no playbook configured")
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := p.Resolver.HostPort(node.IP, node.SSHPort)

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            p.User,
		Auth:            []ssh.AuthMethod{ssh.Password(p.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- workers are ephemeral, keys rotate on reprovision
		Timeout:         timeout,
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return fmt.Errorf("ssh %s: %w", addr, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("session %s: %w", addr, err)
	}
	defer func() { _ = session.Close() }()

	cmd := fmt.Sprintf("%s %s %s", playbook, shellQuote(user), shellQuote(secret))
	out, err := session.CombinedOutput(cmd)
	if err != nil {
		logger := xlog.WithComponent("provision")
		logger.Error().
			Int64("node_id", node.ID).
			Str("addr", addr).
			Str("playbook", playbook).
			Str("output", truncate(string(out), 512)).
			Err(err).
			Msg("playbook failed")
		return fmt.Errorf("playbook %s on %s: %w", playbook, addr, err)
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping embedded quotes, so secrets
// survive the remote shell verbatim.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
