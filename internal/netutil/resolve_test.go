// SPDX-License-Identifier: MIT

package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"docker bridge", "172.17.0.5", "host.docker.internal"},
		{"docker bridge low octet", "172.17.255.1", "host.docker.internal"},
		{"public ip", "203.0.113.9", "203.0.113.9"},
		{"other private range", "172.18.0.5", "172.18.0.5"},
		{"hostname", "worker-03.example.net", "worker-03.example.net"},
	}

	var r Resolver
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.in))
		})
	}
}

func TestResolveCustomAlias(t *testing.T) {
	r := Resolver{Alias: "gateway.local"}
	assert.Equal(t, "gateway.local", r.Resolve("172.17.0.2"))
	assert.Equal(t, "gateway.local:2222", r.HostPort("172.17.0.2", 2222))
	assert.Equal(t, "node1:22", r.HostPort("node1", 22))
}
