// SPDX-License-Identifier: MIT

package provision

import (
	"context"
	"sync"

	"github.com/orionhq/orion/internal/core"
)

// Op names a recorded provisioner operation.
type Op string

const (
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

// Call is one recorded provisioner invocation.
type Call struct {
	Op     Op
	NodeID int64
	Host   string
	User   string
	Secret string
}

// Recorder is a scriptable in-memory Provisioner for tests. CreateErr and
// DeleteErr, when set, decide per call whether the operation fails; calls are
// recorded either way.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	CreateErr func(node core.Node, user string) error
	DeleteErr func(node core.Node, user string) error
}

// CreateUser implements Provisioner.
func (r *Recorder) CreateUser(_ context.Context, node core.Node, user, secret string) error {
	r.record(Call{Op: OpCreate, NodeID: node.ID, Host: node.IP, User: user, Secret: secret})
	r.mu.Lock()
	fail := r.CreateErr
	r.mu.Unlock()
	if fail != nil {
		return fail(node, user)
	}
	return nil
}

// DeleteUser implements Provisioner.
func (r *Recorder) DeleteUser(_ context.Context, node core.Node, user, secret string) error {
	r.record(Call{Op: OpDelete, NodeID: node.ID, Host: node.IP, User: user, Secret: secret})
	r.mu.Lock()
	fail := r.DeleteErr
	r.mu.Unlock()
	if fail != nil {
		return fail(node, user)
	}
	return nil
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns a copy of all recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsOf filters recorded calls by operation.
func (r *Recorder) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls and failure hooks.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.CreateErr = nil
	r.DeleteErr = nil
}
