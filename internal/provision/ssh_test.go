// SPDX-License-Identifier: MIT

package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/core"
)

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'abc'", shellQuote("abc"))
	assert.Equal(t, `'a'\''b'`, shellQuote("a'b"))
	assert.Equal(t, "'p@ss w0rd'", shellQuote("p@ss w0rd"))
	assert.Equal(t, "''", shellQuote(""))
}

func TestRunFailsFastWithoutPlaybook(t *testing.T) {
	p := &SSH{User: "root", Password: "pw", Timeout: time.Second}
	err := p.CreateUser(context.Background(), core.Node{IP: "127.0.0.1", SSHPort: 1}, "alice", "s")
	assert.True(t, core.IsKind(err, core.KindInternal))
}

func TestRunFailsWhenUnreachable(t *testing.T) {
	p := &SSH{
		User:           "root",
		Password:       "pw",
		CreatePlaybook: "/opt/orion/create_user",
		Timeout:        200 * time.Millisecond,
	}
	start := time.Now()
	err := p.CreateUser(context.Background(), core.Node{IP: "192.0.2.1", SSHPort: 22}, "alice", "s")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRecorderScripting(t *testing.T) {
	rec := &Recorder{}
	node := core.Node{ID: 3, IP: "10.0.0.3"}

	require.NoError(t, rec.CreateUser(context.Background(), node, "alice", "s3cret"))

	boom := errors.New("ssh: broken")
	rec.DeleteErr = func(core.Node, string) error { return boom }
	err := rec.DeleteUser(context.Background(), node, "alice", "")
	assert.ErrorIs(t, err, boom)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, OpCreate, calls[0].Op)
	assert.Equal(t, "s3cret", calls[0].Secret)
	assert.Equal(t, OpDelete, calls[1].Op)
	require.Len(t, rec.CallsOf(OpDelete), 1)
}
