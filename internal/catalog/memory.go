// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orionhq/orion/internal/core"
)

// Memory is an in-process catalog used by unit tests. Transactions are
// serialized by a mutex, which trivially satisfies the skip-locked contract
// (no two live transactions ever hold rows at once); rollback restores a
// snapshot taken at transaction start.
type Memory struct {
	mu sync.Mutex

	nodes   map[int64]*core.Node
	leases  map[int64]*core.Lease
	tenants map[int64]*core.Tenant

	nextNodeID   int64
	nextLeaseID  int64
	nextTenantID int64
}

// NewMemory returns an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		nodes:   make(map[int64]*core.Node),
		leases:  make(map[int64]*core.Lease),
		tenants: make(map[int64]*core.Tenant),
	}
}

type memState struct {
	nodes   map[int64]*core.Node
	leases  map[int64]*core.Lease
	tenants map[int64]*core.Tenant

	nextNodeID   int64
	nextLeaseID  int64
	nextTenantID int64
}

func (m *Memory) snapshot() memState {
	s := memState{
		nodes:        make(map[int64]*core.Node, len(m.nodes)),
		leases:       make(map[int64]*core.Lease, len(m.leases)),
		tenants:      make(map[int64]*core.Tenant, len(m.tenants)),
		nextNodeID:   m.nextNodeID,
		nextLeaseID:  m.nextLeaseID,
		nextTenantID: m.nextTenantID,
	}
	for id, n := range m.nodes {
		cp := *n
		if n.LastChecked != nil {
			t := *n.LastChecked
			cp.LastChecked = &t
		}
		s.nodes[id] = &cp
	}
	for id, l := range m.leases {
		cp := *l
		cp.Secret = append([]byte(nil), l.Secret...)
		s.leases[id] = &cp
	}
	for id, t := range m.tenants {
		cp := *t
		s.tenants[id] = &cp
	}
	return s
}

func (m *Memory) restore(s memState) {
	m.nodes = s.nodes
	m.leases = s.leases
	m.tenants = s.tenants
	m.nextNodeID = s.nextNodeID
	m.nextLeaseID = s.nextLeaseID
	m.nextTenantID = s.nextTenantID
}

// WithTx implements Catalog.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return core.Wrap(core.KindInternal, "begin", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// SeedNode inserts a node directly, for test setup.
func (m *Memory) SeedNode(n core.Node) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNodeID++
	n.ID = m.nextNodeID
	if n.Status == "" {
		n.Status = core.StatusUnknown
	}
	m.nodes[n.ID] = &n
	return n.ID
}

// SeedTenant inserts a tenant directly, for test setup.
func (m *Memory) SeedTenant(t core.Tenant) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTenantID++
	t.ID = m.nextTenantID
	if t.Role == "" {
		t.Role = core.RoleUser
	}
	m.tenants[t.ID] = &t
	return t.ID
}

// SeedLease inserts a lease directly, for test setup.
func (m *Memory) SeedLease(l core.Lease) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLeaseID++
	l.ID = m.nextLeaseID
	m.leases[l.ID] = &l
	return l.ID
}

// Node returns a copy of the node, for test assertions.
func (m *Memory) Node(id int64) (core.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return core.Node{}, false
	}
	return *n, true
}

// Lease returns a copy of the lease, for test assertions.
func (m *Memory) Lease(id int64) (core.Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[id]
	if !ok {
		return core.Lease{}, false
	}
	return *l, true
}

// Leases returns copies of all leases ordered by id, for test assertions.
func (m *Memory) Leases() []core.Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Lease, 0, len(m.leases))
	for _, l := range m.leases {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memTx operates directly on the catalog maps; WithTx already holds the lock
// and handles rollback.
type memTx struct {
	m *Memory
}

func (t *memTx) node(id int64) (*core.Node, error) {
	n, ok := t.m.nodes[id]
	if !ok {
		return nil, core.NotFound("node", id)
	}
	return n, nil
}

func (t *memTx) ClaimEligibleNodes(_ context.Context, k int, exclude int64) ([]core.Node, error) {
	var out []core.Node
	for _, n := range t.m.nodes {
		if n.ID == exclude {
			continue
		}
		if n.Status == core.StatusAlive && !n.Allocated && !n.NeedsCleanup {
			out = append(out, *n)
		}
	}
	sortNodesByCheckedDesc(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (t *memTx) ClaimStaleNodes(_ context.Context, cutoff time.Time, limit int) ([]core.Node, error) {
	var out []core.Node
	for _, n := range t.m.nodes {
		if n.LastChecked == nil || n.LastChecked.Before(cutoff) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastChecked, out[j].LastChecked
		switch {
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ClaimDeadAllocatedNodes(_ context.Context, limit int) ([]core.Node, error) {
	var out []core.Node
	for _, n := range t.m.nodes {
		if n.Status == core.StatusDead && n.Allocated {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ClaimCleanupNodes(_ context.Context, limit int) ([]core.Node, error) {
	var out []core.Node
	for _, n := range t.m.nodes {
		if n.Status == core.StatusAlive && n.NeedsCleanup {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ClaimExpiredLeases(_ context.Context, now time.Time, limit int) ([]core.LeaseJoinedRow, error) {
	var out []core.LeaseJoinedRow
	for _, l := range t.m.leases {
		if !l.Active || l.LeasedUntil.After(now) {
			continue
		}
		n, ok := t.m.nodes[l.NodeID]
		if !ok || !n.Allocated {
			continue
		}
		row := core.LeaseJoinedRow{Lease: *l, Node: *n}
		if tn, ok := t.m.tenants[l.TenantID]; ok {
			row.Handle = tn.Handle
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lease.ID < out[j].Lease.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) MarkAllocated(_ context.Context, nodeID int64) error {
	n, err := t.node(nodeID)
	if err != nil {
		return err
	}
	n.Allocated = true
	return nil
}

func (t *memTx) MarkFree(_ context.Context, nodeID int64) error {
	n, err := t.node(nodeID)
	if err != nil {
		return err
	}
	n.Allocated = false
	return nil
}

func (t *memTx) SetCleanup(_ context.Context, nodeID int64, needsCleanup bool) error {
	n, err := t.node(nodeID)
	if err != nil {
		return err
	}
	n.NeedsCleanup = needsCleanup
	return nil
}

func (t *memTx) SetStatus(_ context.Context, nodeID int64, status core.NodeStatus, at time.Time) error {
	n, err := t.node(nodeID)
	if err != nil {
		return err
	}
	n.Status = status
	at = at.UTC()
	n.LastChecked = &at
	return nil
}

func (t *memTx) TouchChecked(_ context.Context, nodeID int64, at time.Time) error {
	n, err := t.node(nodeID)
	if err != nil {
		return err
	}
	at = at.UTC()
	n.LastChecked = &at
	return nil
}

func (t *memTx) InsertLease(_ context.Context, nodeID, tenantID int64, from, until time.Time, secret []byte) (int64, error) {
	if !from.Before(until) {
		return 0, core.Errf(core.KindInternal, "lease window check violated")
	}
	if _, ok := t.m.nodes[nodeID]; !ok {
		return 0, core.NotFound("node", nodeID)
	}
	t.m.nextLeaseID++
	l := &core.Lease{
		ID:          t.m.nextLeaseID,
		NodeID:      nodeID,
		TenantID:    tenantID,
		LeasedFrom:  from.UTC(),
		LeasedUntil: until.UTC(),
		Active:      true,
		Secret:      append([]byte(nil), secret...),
	}
	t.m.leases[l.ID] = l
	return l.ID, nil
}

func (t *memTx) DeactivateLease(_ context.Context, leaseID int64) error {
	l, ok := t.m.leases[leaseID]
	if !ok {
		return core.NotFound("lease", leaseID)
	}
	l.Active = false
	return nil
}

func (t *memTx) UpdateLeaseEnd(_ context.Context, leaseID int64, until time.Time) error {
	l, ok := t.m.leases[leaseID]
	if !ok {
		return core.NotFound("lease", leaseID)
	}
	l.LeasedUntil = until.UTC()
	return nil
}

func (t *memTx) ActiveLeasesOnNode(_ context.Context, nodeID int64) ([]core.Lease, error) {
	var out []core.Lease
	for _, l := range t.m.leases {
		if l.NodeID == nodeID && l.Active {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) LeaseRowForUpdate(_ context.Context, leaseID int64) (core.LeaseJoinedRow, error) {
	l, ok := t.m.leases[leaseID]
	if !ok {
		return core.LeaseJoinedRow{}, core.NotFound("lease", leaseID)
	}
	n, ok := t.m.nodes[l.NodeID]
	if !ok {
		return core.LeaseJoinedRow{}, core.NotFound("node", l.NodeID)
	}
	row := core.LeaseJoinedRow{Lease: *l, Node: *n}
	if tn, ok := t.m.tenants[l.TenantID]; ok {
		row.Handle = tn.Handle
	}
	return row, nil
}

func (t *memTx) HistoricalTenants(_ context.Context, nodeID int64) ([]core.HistoricalTenant, error) {
	latest := make(map[int64]*core.Lease)
	for _, l := range t.m.leases {
		if l.NodeID != nodeID {
			continue
		}
		if prev, ok := latest[l.TenantID]; !ok || l.ID > prev.ID {
			latest[l.TenantID] = l
		}
	}
	var out []core.HistoricalTenant
	for tenantID, l := range latest {
		h := core.HistoricalTenant{TenantID: tenantID, Secret: append([]byte(nil), l.Secret...)}
		if tn, ok := t.m.tenants[tenantID]; ok {
			h.Handle = tn.Handle
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (t *memTx) InsertNode(_ context.Context, hostname, ip string, sshPort int) (int64, error) {
	for _, n := range t.m.nodes {
		if n.Hostname == hostname && n.SSHPort == sshPort {
			return 0, core.Errf(core.KindConflict, "node %s:%d already registered", hostname, sshPort)
		}
	}
	t.m.nextNodeID++
	n := &core.Node{
		ID:       t.m.nextNodeID,
		Hostname: hostname,
		IP:       ip,
		SSHPort:  sshPort,
		Status:   core.StatusUnknown,
	}
	t.m.nodes[n.ID] = n
	return n.ID, nil
}

func (t *memTx) ListNodes(_ context.Context) ([]core.Node, error) {
	out := make([]core.Node, 0, len(t.m.nodes))
	for _, n := range t.m.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ActiveLeaseRowsForTenant(_ context.Context, tenantID int64) ([]core.LeaseJoinedRow, error) {
	var out []core.LeaseJoinedRow
	for _, l := range t.m.leases {
		if l.TenantID != tenantID || !l.Active {
			continue
		}
		n, ok := t.m.nodes[l.NodeID]
		if !ok {
			continue
		}
		row := core.LeaseJoinedRow{Lease: *l, Node: *n}
		if tn, ok := t.m.tenants[tenantID]; ok {
			row.Handle = tn.Handle
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lease.ID < out[j].Lease.ID })
	return out, nil
}

func (t *memTx) ActiveLeaseRows(_ context.Context) ([]core.LeaseJoinedRow, error) {
	var out []core.LeaseJoinedRow
	for _, l := range t.m.leases {
		if !l.Active {
			continue
		}
		n, ok := t.m.nodes[l.NodeID]
		if !ok {
			continue
		}
		row := core.LeaseJoinedRow{Lease: *l, Node: *n}
		if tn, ok := t.m.tenants[l.TenantID]; ok {
			row.Handle = tn.Handle
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lease.ID < out[j].Lease.ID })
	return out, nil
}

func (t *memTx) CreateTenant(_ context.Context, handle, passwordHash string, role core.Role) (int64, error) {
	for _, tn := range t.m.tenants {
		if tn.Handle == handle {
			return 0, core.Errf(core.KindConflict, "tenant %q already exists", handle)
		}
	}
	t.m.nextTenantID++
	tn := &core.Tenant{
		ID:           t.m.nextTenantID,
		Handle:       handle,
		PasswordHash: passwordHash,
		Role:         role,
	}
	t.m.tenants[tn.ID] = tn
	return tn.ID, nil
}

func (t *memTx) TenantByHandle(_ context.Context, handle string) (core.Tenant, error) {
	for _, tn := range t.m.tenants {
		if tn.Handle == handle {
			return *tn, nil
		}
	}
	return core.Tenant{}, core.Errf(core.KindNotFound, "tenant %q not found", handle)
}

func (t *memTx) TenantByID(_ context.Context, id int64) (core.Tenant, error) {
	tn, ok := t.m.tenants[id]
	if !ok {
		return core.Tenant{}, core.NotFound("tenant", id)
	}
	return *tn, nil
}

func (t *memTx) Reset(_ context.Context) error {
	t.m.nodes = make(map[int64]*core.Node)
	t.m.leases = make(map[int64]*core.Lease)
	return nil
}

func sortNodesByCheckedDesc(nodes []core.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].LastChecked, nodes[j].LastChecked
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return nodes[i].ID < nodes[j].ID
		default:
			return a.After(*b)
		}
	})
}
