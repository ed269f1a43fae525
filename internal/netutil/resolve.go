// SPDX-License-Identifier: MIT

// Package netutil carries the single naming transformation the control plane
// applies to worker addresses.
package netutil

import (
	"net"
	"strconv"
	"strings"
)

// DefaultDockerAlias is the host-loopback alias substituted for addresses on
// the container-internal bridge network.
const DefaultDockerAlias = "host.docker.internal"

// dockerBridgePrefix identifies addresses assigned by the default docker
// bridge, which are unreachable from outside the host.
const dockerBridgePrefix = "172.17."

// Resolver rewrites container-internal worker addresses to a reachable alias.
// The zero value uses DefaultDockerAlias.
type Resolver struct {
	Alias string
}

// Resolve returns the address to dial for the stored host. Addresses on the
// docker bridge network are replaced by the configured alias; everything else
// passes through unchanged.
func (r Resolver) Resolve(host string) string {
	if strings.HasPrefix(host, dockerBridgePrefix) {
		if r.Alias != "" {
			return r.Alias
		}
		return DefaultDockerAlias
	}
	return host
}

// HostPort resolves host and joins it with port in dialable form.
func (r Resolver) HostPort(host string, port int) string {
	return net.JoinHostPort(r.Resolve(host), strconv.Itoa(port))
}
