// SPDX-License-Identifier: MIT

package catalog

// Schema is applied at startup. Statements are idempotent so any number of
// control-plane replicas can race on boot.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id            BIGSERIAL PRIMARY KEY,
	handle        TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user'
);

CREATE TABLE IF NOT EXISTS nodes (
	id            BIGSERIAL PRIMARY KEY,
	hostname      TEXT NOT NULL,
	ip            TEXT NOT NULL,
	ssh_port      INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'unknown',
	allocated     BOOLEAN NOT NULL DEFAULT FALSE,
	needs_cleanup BOOLEAN NOT NULL DEFAULT FALSE,
	last_checked  TIMESTAMPTZ,
	CONSTRAINT nodes_endpoint_unique UNIQUE (hostname, ssh_port)
);

CREATE TABLE IF NOT EXISTS leases (
	id           BIGSERIAL PRIMARY KEY,
	node_id      BIGINT NOT NULL REFERENCES nodes(id),
	tenant_id    BIGINT NOT NULL REFERENCES tenants(id),
	leased_from  TIMESTAMPTZ NOT NULL,
	leased_until TIMESTAMPTZ NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	secret       BYTEA,
	CONSTRAINT leases_window_check CHECK (leased_from < leased_until)
);

CREATE INDEX IF NOT EXISTS leases_expiry_idx ON leases (leased_until) WHERE active;
CREATE INDEX IF NOT EXISTS leases_node_idx ON leases (node_id);
CREATE INDEX IF NOT EXISTS leases_tenant_idx ON leases (tenant_id) WHERE active;
`
