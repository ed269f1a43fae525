// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionhq/orion/internal/alloc"
	"github.com/orionhq/orion/internal/auth"
	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/netutil"
	"github.com/orionhq/orion/internal/provision"
	"github.com/orionhq/orion/internal/vault"
)

type testServer struct {
	mux http.Handler
	mem *catalog.Memory
	rec *provision.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	v, err := vault.New("test-key")
	require.NoError(t, err)
	mem := catalog.NewMemory()
	rec := &provision.Recorder{}
	svc := alloc.New(mem, rec, v, netutil.Resolver{})
	issuer := auth.NewIssuer("test-jwt-secret", time.Hour)
	return &testServer{
		mux: New(svc, mem, issuer).Router(),
		mem: mem,
		rec: rec,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func (ts *testServer) signupAndLogin(t *testing.T, username, password string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("admin-password")
	require.NoError(t, err)
	ts.mem.SeedTenant(core.Tenant{Handle: "operator", PasswordHash: hash, Role: core.RoleAdmin})
	w := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "operator", "password": "admin-password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestSignupValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "Not A User", "password": "long-enough",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "ada", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "ada", "password": "long-enough",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "ada", "password": "long-enough",
	})
	assert.Equal(t, http.StatusConflict, w.Code, "duplicate handle rejected")
}

func TestLoginFailuresAreUniform(t *testing.T) {
	ts := newTestServer(t)
	ts.signupAndLogin(t, "ada", "long-enough")

	w := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "ada", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "nobody", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unknown user looks identical to wrong password")
}

func TestRentFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "ada", "long-enough")
	ts.mem.SeedNode(core.Node{Hostname: "w1", IP: "172.17.0.9", SSHPort: 2222, Status: core.StatusAlive})

	w := ts.do(t, http.MethodPost, "/api/rent", "", map[string]any{"count": 1, "hours": 2})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "rent requires a token")

	w = ts.do(t, http.MethodPost, "/api/rent", token, map[string]any{"count": 0, "hours": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/rent", token, map[string]any{"count": 1, "hours": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Allocations []allocationResponse `json:"allocations"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Allocations, 1)
	a := resp.Allocations[0]
	assert.Equal(t, netutil.DefaultDockerAlias, a.Endpoint)
	assert.Equal(t, "ada", a.User)
	assert.NotEmpty(t, a.Secret)
	assert.Equal(t, 2*time.Hour, a.LeasedUntil.Sub(a.LeasedFrom))

	w = ts.do(t, http.MethodPost, "/api/rent", token, map[string]any{"count": 2, "hours": 1})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var errResp errorBody
	decode(t, w, &errResp)
	require.NotNil(t, errResp.Found)
	assert.Equal(t, 0, *errResp.Found)
}

func TestReleaseAndExtend(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signupAndLogin(t, "ada", "long-enough")
	stranger := ts.signupAndLogin(t, "bob", "long-enough")
	ts.mem.SeedNode(core.Node{Hostname: "w1", IP: "10.0.0.1", SSHPort: 22, Status: core.StatusAlive})

	w := ts.do(t, http.MethodPost, "/api/rent", owner, map[string]any{"count": 1, "hours": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Allocations []allocationResponse `json:"allocations"`
	}
	decode(t, w, &resp)
	leaseID := resp.Allocations[0].LeaseID

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/extend/%d", leaseID), stranger, map[string]any{"hours": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/extend/%d", leaseID), owner, map[string]any{"hours": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var extended struct {
		LeasedUntil time.Time `json:"leased_until"`
	}
	decode(t, w, &extended)
	assert.True(t, extended.LeasedUntil.Equal(resp.Allocations[0].LeasedUntil.Add(time.Hour)),
		"end pushed forward by exactly one hour")

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/release/%d", leaseID), stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/release/%d", leaseID), owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/release/%d", leaseID), owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "double release is NotActive")

	w = ts.do(t, http.MethodPost, "/api/release/99999", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeaseSecretAndNodeVisibility(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signupAndLogin(t, "ada", "long-enough")
	admin := ts.adminToken(t)
	ts.mem.SeedNode(core.Node{Hostname: "w1", IP: "10.0.0.1", SSHPort: 22, Status: core.StatusAlive})
	ts.mem.SeedNode(core.Node{Hostname: "w2", IP: "10.0.0.2", SSHPort: 22, Status: core.StatusAlive})

	w := ts.do(t, http.MethodPost, "/api/rent", owner, map[string]any{"count": 1, "hours": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Allocations []allocationResponse `json:"allocations"`
	}
	decode(t, w, &resp)
	leaseID := resp.Allocations[0].LeaseID

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/leases/%d/secret", leaseID), admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "secrets are owner-only")

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/leases/%d/secret", leaseID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var secretResp struct {
		Secret string `json:"secret"`
	}
	decode(t, w, &secretResp)
	assert.Equal(t, resp.Allocations[0].Secret, secretResp.Secret)

	w = ts.do(t, http.MethodGet, "/api/nodes", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var adminNodes struct {
		Nodes []nodeResponse `json:"nodes"`
	}
	decode(t, w, &adminNodes)
	assert.Len(t, adminNodes.Nodes, 2)

	w = ts.do(t, http.MethodGet, "/api/nodes", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ownNodes struct {
		Nodes []nodeResponse `json:"nodes"`
	}
	decode(t, w, &ownNodes)
	require.Len(t, ownNodes.Nodes, 1)
	assert.Equal(t, leaseID, ownNodes.Nodes[0].LeaseID)
}

func TestRegisterWorker(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/workers/register", "", map[string]any{
		"hostname": "w1", "ip": "172.17.0.5", "ssh_port": 2222,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var first struct {
		NodeID int64 `json:"node_id"`
	}
	decode(t, w, &first)

	w = ts.do(t, http.MethodPost, "/api/workers/register", "", map[string]any{
		"hostname": "w1", "ip": "172.17.0.5", "ssh_port": 2222,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var second struct {
		NodeID int64 `json:"node_id"`
	}
	decode(t, w, &second)
	assert.Equal(t, first.NodeID, second.NodeID, "re-registration is idempotent")

	w = ts.do(t, http.MethodPost, "/api/workers/register", "", map[string]any{
		"hostname": "", "ip": "172.17.0.5", "ssh_port": 2222,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	user := ts.signupAndLogin(t, "ada", "long-enough")
	admin := ts.adminToken(t)
	ts.mem.SeedNode(core.Node{Hostname: "w1", IP: "10.0.0.1", SSHPort: 22, Status: core.StatusAlive})

	w := ts.do(t, http.MethodPost, "/api/reset", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/reset", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/nodes", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nodes struct {
		Nodes []nodeResponse `json:"nodes"`
	}
	decode(t, w, &nodes)
	assert.Empty(t, nodes.Nodes)
}
